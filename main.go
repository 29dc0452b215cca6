package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/bgvanish/config"
	"github.com/chaos-io/bgvanish/cutout"
	"github.com/chaos-io/bgvanish/cutout/segment"
	"github.com/chaos-io/bgvanish/handler"
	"github.com/chaos-io/bgvanish/middleware"
	"github.com/chaos-io/bgvanish/session"
	"github.com/chaos-io/bgvanish/util"
	nhttp "github.com/chaos-io/bgvanish/util/http"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	in := flag.String("in", "", "图片路径或 http(s) 地址，指定后只处理一张图片并退出")
	out := flag.String("out", "cutout.png", "输出 PNG 路径，配合 -in 使用")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	remover, loader, err := buildPipeline(cfg)
	if err != nil {
		util.Logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	if *in != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Segmenter.Timeout+cfg.Upload.URLTimeout)
		defer cancel()
		if err := runOnce(ctx, remover, loader, *in, *out); err != nil {
			util.Logger.Error("failed to remove background", zap.String("input", *in), zap.Error(err))
			os.Exit(1)
		}
		return
	}

	util.Logger.Info("starting bgvanish server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	sessions := session.NewManager(cfg.Session.TTL, util.Logger)
	if err := sessions.Start(cfg.Session.SweepSpec); err != nil {
		util.Logger.Fatal("failed to start session sweeper", zap.Error(err))
	}
	defer sessions.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      newRouter(cfg, handler.NewHandler(cfg, remover, loader, sessions)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	util.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, util.Logger); err != nil {
		util.Logger.Fatal("server exited with error", zap.Error(err))
	}
	util.Logger.Info("server stopped")
}

func buildPipeline(cfg *config.Config) (*cutout.Remover, *cutout.Loader, error) {
	polarity, err := cutout.ParsePolarity(cfg.Pipeline.MaskPolarity)
	if err != nil {
		return nil, nil, err
	}

	seg := segment.NewHTTPSegmenter(segment.Options{
		Endpoint:         cfg.Segmenter.Endpoint,
		Model:            cfg.Segmenter.Model,
		Timeout:          cfg.Segmenter.Timeout,
		AllowLocalModels: cfg.Segmenter.AllowLocalModels,
		UseCache:         cfg.Segmenter.UseCache,
		Logger:           util.Logger,
	}, nhttp.NewHTTPClientWithTimeout(cfg.Segmenter.Timeout))

	remover := cutout.NewRemover(seg,
		cutout.WithMaxDimension(cfg.Pipeline.MaxDimension),
		cutout.WithPolarity(polarity),
		cutout.WithLogger(util.Logger))
	loader := cutout.NewLoader(nhttp.NewHTTPClientWithTimeout(cfg.Upload.URLTimeout), cfg.Upload.MaxSize, cfg.Upload.URLTimeout)
	return remover, loader, nil
}

func newRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	h.Register(r)
	return r
}

// runOnce 命令行模式：处理单张图片并写出 PNG
func runOnce(ctx context.Context, remover *cutout.Remover, loader *cutout.Loader, in, out string) error {
	defer util.Trace("runOnce")()

	img, err := loadInput(ctx, loader, in)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := remover.Remove(ctx, img, func(stage cutout.Stage, progress float64) {
		util.Logger.Info(stage.Status(), zap.Float64("progress", progress))
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	util.Logger.Info("Done!",
		zap.String("output", out),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
		zap.Bool("resized", res.Resized),
		zap.Duration("cost", time.Since(start)))
	return nil
}

func loadInput(ctx context.Context, loader *cutout.Loader, in string) (image.Image, error) {
	if _, perr := cutout.ParseImageURL(in); perr == nil {
		return loader.LoadURL(ctx, in)
	}
	return cutout.LoadFile(in)
}
