// Command rtsdemo renders a small strategy-game scene headless and writes a
// screenshot of the last frame.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/rtsgfx"
	"github.com/gogpu/rtsgfx/backend"
	"github.com/urfave/cli/v2"

	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "TOML renderer configuration",
	}
	backendFlag = &cli.StringFlag{
		Name:  "backend",
		Usage: "device backend (" + strings.Join(backend.Names(), ", ") + ")",
	}
	widthFlag = &cli.IntFlag{
		Name:  "width",
		Usage: "output width, overrides the configuration",
	}
	heightFlag = &cli.IntFlag{
		Name:  "height",
		Usage: "output height, overrides the configuration",
	}
	framesFlag = &cli.IntFlag{
		Name:  "frames",
		Usage: "number of frames to render",
		Value: 3,
	}
	outFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "screenshot file (.png, .bmp, .tif)",
		Value:   "rtsdemo.png",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "log renderer activity to stderr",
	}
)

func main() {
	app := &cli.App{
		Name:   "rtsdemo",
		Usage:  "render a demo scene and save a screenshot",
		Flags:  []cli.Flag{configFlag, backendFlag, widthFlag, heightFlag, framesFlag, outFlag, verboseFlag},
		Action: render,
		Commands: []*cli.Command{
			{
				Name:   "backends",
				Usage:  "list the registered backends",
				Action: listBackends,
			},
			{
				Name:   "config",
				Usage:  "print the effective configuration",
				Flags:  []cli.Flag{configFlag, backendFlag, widthFlag, heightFlag},
				Action: printConfig,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rtsdemo:", err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (rtsgfx.Config, error) {
	cfg := rtsgfx.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = rtsgfx.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(backendFlag.Name) {
		cfg.Backend = ctx.String(backendFlag.Name)
	}
	if ctx.IsSet(widthFlag.Name) {
		cfg.Width = ctx.Int(widthFlag.Name)
	}
	if ctx.IsSet(heightFlag.Name) {
		cfg.Height = ctx.Int(heightFlag.Name)
	}
	return cfg, cfg.Validate()
}

func openDevice(name string) (*backend.Device, error) {
	if name == "" {
		return backend.Open()
	}
	return backend.OpenByName(name)
}

func render(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.Bool(verboseFlag.Name) {
		rtsgfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	dev, err := openDevice(cfg.Backend)
	if err != nil {
		return err
	}
	defer dev.Close()

	r := rtsgfx.New(dev, cfg.Options()...)
	if err := r.Init(cfg.Width, cfg.Height); err != nil {
		return err
	}
	defer r.Done()

	s, err := newScene(r, cfg)
	if err != nil {
		return err
	}
	defer s.release()

	frames := max(ctx.Int(framesFlag.Name), 1)
	for i := range frames {
		if err := s.draw(i); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := r.Flush(true); err != nil {
			return err
		}
	}

	out := ctx.String(outFlag.Name)
	if err := r.Screenshot(out); err != nil {
		return err
	}
	st := r.Stats()
	fmt.Printf("%s: %dx%d on %s, %d commands, %d draws, %d pipelines\n",
		out, cfg.Width, cfg.Height, dev.Name, st.Commands, st.Draws, st.Pipelines)
	return nil
}

func listBackends(*cli.Context) error {
	for _, name := range backend.Names() {
		mark := " "
		if backend.IsRegistered(name) {
			mark = "*"
		}
		fmt.Printf("%s %s\n", mark, name)
	}
	return nil
}

func printConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
