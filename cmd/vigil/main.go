package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vigil/internal/auth"
	"vigil/internal/camera"
	"vigil/internal/config"
	"vigil/internal/detection"
	"vigil/internal/event"
	"vigil/internal/notify"
	"vigil/internal/server"
	"vigil/internal/storage"
	"vigil/internal/store"
	"vigil/internal/vision"
	"vigil/internal/ws"
)

func main() {
	var (
		addrF = flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
		dbF   = flag.String("db", "", "sqlite database path (overrides DB_PATH)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[vigil] ", log.Ltime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("loading configuration: %s", err)
	}
	if *addrF != "" {
		cfg.HTTPAddr = *addrF
	}
	if *dbF != "" {
		cfg.DBPath = *dbF
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("opening database %s: %s", cfg.DBPath, err)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		logger.Fatalf("migrating database: %s", err)
	}

	// Notifiers are optional; each one is enabled by its own config.
	var notifiers []event.Notifier
	if cfg.WebhookURL != "" {
		whCfg := notify.DefaultWebhookConfig(cfg.WebhookURL)
		whCfg.APIKey = cfg.WebhookAPIKey
		notifiers = append(notifiers, notify.NewWebhook(whCfg))
		logger.Printf("webhook notifier -> %s", cfg.WebhookURL)
	}
	if cfg.MQTTHost != "" {
		pub, err := notify.NewMQTTPublisher(notify.MQTTConfig{
			Host:        cfg.MQTTHost,
			Port:        cfg.MQTTPort,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopic,
		})
		if err != nil {
			logger.Printf("mqtt notifier disabled: %s", err)
		} else {
			notifiers = append(notifiers, pub)
			defer pub.Close()
			logger.Printf("mqtt notifier -> %s:%d", cfg.MQTTHost, cfg.MQTTPort)
		}
	}

	var archiver event.Archiver
	if cfg.MinioEndpoint != "" {
		arc, err := storage.NewMinioArchiver(storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Printf("recording archive disabled: %s", err)
		} else {
			archiver = arc
			logger.Printf("archiving recordings to %s/%s", cfg.MinioEndpoint, cfg.MinioBucket)
		}
	}

	var detector detection.Detector
	if cfg.DetectorEndpoint != "" {
		detector = detection.NewHTTPDetector(cfg.DetectorEndpoint)
		logger.Printf("object detector -> %s", cfg.DetectorEndpoint)
	}

	eventCfg := event.DefaultConfig()
	eventCfg.ConsistencyWindow = cfg.ConsistencyWindow
	eventCfg.ScreenshotCooldown = cfg.ScreenshotCooldown
	eventCfg.NotificationCooldown = cfg.NotificationCooldown
	eventCfg.MinRecordAge = cfg.MinRecordAge
	eventCfg.QuiescenceWindow = cfg.QuiescenceWindow
	eventCfg.RecordingDir = cfg.RecordingDir
	eventCfg.ScreenshotDir = cfg.ScreenshotDir
	eventCfg.TempDir = cfg.TempDir
	events := event.NewEngine(eventCfg, nil, notifiers, archiver)

	visionCfg := vision.DefaultConfig()
	visionCfg.DiffThreshold = cfg.DiffThreshold
	visionCfg.MinContourArea = cfg.MinContourArea

	hub := ws.NewHub()
	manager := camera.NewManager(visionCfg, events, detector, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go events.StartSweeper(ctx)

	if err := startCameras(cfg, st, manager, logger); err != nil {
		logger.Fatalf("starting cameras: %s", err)
	}

	var authenticator *auth.Authenticator
	if cfg.AuthEnabled {
		authenticator = auth.New(auth.Config{
			Enabled:   true,
			Username:  cfg.AuthUsername,
			Password:  cfg.AuthPassword,
			JWTSecret: cfg.JWTSecret,
		})
		logger.Printf("api authentication enabled for user %s", cfg.AuthUsername)
	}

	srv := server.New(st, manager, events, hub, authenticator)
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		logger.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		errc <- httpSrv.ListenAndServe()
	}()

	logger.Printf("exiting (%v)", <-errc)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %s", err)
	}
	manager.StopAll()
	cancel()
	logger.Println("exited")
}

// startCameras launches a processor for every persisted camera. When the
// database is empty and CAMERA_SOURCE is set, that camera is registered
// first so a fresh install comes up with one stream.
func startCameras(cfg *config.Config, st *store.Store, manager *camera.Manager, logger *log.Logger) error {
	cams, err := st.ListCameras()
	if err != nil {
		return err
	}

	if len(cams) == 0 && cfg.CameraSource != "" {
		name := cfg.CameraName
		if name == "" {
			name = "camera1"
		}
		rec, err := st.AddCamera(name, cfg.CameraSource, cfg.CameraOutput)
		if err != nil {
			return fmt.Errorf("seeding camera %s: %w", name, err)
		}
		cams = []store.CameraRecord{*rec}
		logger.Printf("registered camera %s from environment", name)
	}

	for _, cam := range cams {
		records, err := st.ListROIs(cam.ID)
		if err != nil {
			return fmt.Errorf("loading rois for %s: %w", cam.Name, err)
		}
		rois := make([]vision.ROI, len(records))
		for i, rec := range records {
			rois[i] = vision.ROI{Name: rec.Name, Points: rec.Points}
		}

		pcfg := camera.ProcessorConfig{
			Name:            cam.Name,
			Source:          cam.RTSPLink,
			Output:          cam.RTSPOutput,
			MediaMTXAPI:     cfg.MediaMTXAPI,
			Width:           cfg.FrameWidth,
			Height:          cfg.FrameHeight,
			FPS:             cfg.CaptureFPS,
			HardwareEncoder: cfg.HardwareEncoder,
		}
		cameraID := cam.ID
		cameraName := cam.Name
		onCommit := func(roi vision.ROI) {
			persistROI(st, cameraID, cameraName, roi)
		}
		onDelete := func(name string) {
			deleteROIByName(st, cameraID, cameraName, name)
		}
		if err := manager.Start(pcfg, rois, onCommit, onDelete); err != nil {
			return fmt.Errorf("starting %s: %w", cam.Name, err)
		}
		logger.Printf("camera %s started (%d rois)", cam.Name, len(rois))
	}
	return nil
}

// persistROI upserts a committed ROI by name for its camera.
func persistROI(st *store.Store, cameraID, cameraName string, roi vision.ROI) {
	records, err := st.ListROIs(cameraID)
	if err != nil {
		fmt.Printf("Warning: persisting roi %s for %s: %v\n", roi.Name, cameraName, err)
		return
	}
	for _, rec := range records {
		if rec.Name == roi.Name {
			if err := st.UpdateROI(rec.ID, roi.Name, roi.Points); err != nil {
				fmt.Printf("Warning: updating roi %s for %s: %v\n", roi.Name, cameraName, err)
			}
			return
		}
	}
	if _, err := st.AddROI(cameraID, roi.Name, roi.Points); err != nil {
		fmt.Printf("Warning: saving roi %s for %s: %v\n", roi.Name, cameraName, err)
	}
}

func deleteROIByName(st *store.Store, cameraID, cameraName, name string) {
	records, err := st.ListROIs(cameraID)
	if err != nil {
		fmt.Printf("Warning: deleting roi %s for %s: %v\n", name, cameraName, err)
		return
	}
	for _, rec := range records {
		if rec.Name == name {
			if err := st.DeleteROI(rec.ID); err != nil {
				fmt.Printf("Warning: deleting roi %s for %s: %v\n", name, cameraName, err)
			}
			return
		}
	}
}
