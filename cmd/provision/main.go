package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sykell/igprovision/internal/config"
	"github.com/sykell/igprovision/internal/db"
	"github.com/sykell/igprovision/internal/logger"
	"github.com/sykell/igprovision/internal/metrics"
	"github.com/sykell/igprovision/internal/provisioner"
	"github.com/sykell/igprovision/internal/proxy"
	"github.com/sykell/igprovision/internal/remote"
	"github.com/sykell/igprovision/internal/service"
	"github.com/sykell/igprovision/internal/session"
)

// RunConfig holds command line options
type RunConfig struct {
	ConfigPath   string
	AccountsFile string
	ProxiesFile  string
	Folder       string
	CreateFolder bool
	ReportFile   string
	CheckOnly    bool
}

func parseFlags() *RunConfig {
	rc := &RunConfig{}
	flag.StringVar(&rc.ConfigPath, "config", "", "Path to an optional ini config file")
	flag.StringVar(&rc.AccountsFile, "accounts", "", "File with one login:password:email:email_password per line")
	flag.StringVar(&rc.ProxiesFile, "proxies", "", "File with one proxy per line")
	flag.StringVar(&rc.Folder, "folder", "", "Folder to file new accounts under")
	flag.BoolVar(&rc.CreateFolder, "create-folder", false, "Create the folder if it does not exist")
	flag.StringVar(&rc.ReportFile, "report", "login_report.txt", "Where to write the batch report")
	flag.BoolVar(&rc.CheckOnly, "check-proxies", false, "Only probe the proxies file and print the results")
	flag.Parse()
	return rc
}

func main() {
	rc := parseFlags()

	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.JSON)
	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, rc)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, rc *RunConfig) int {
	if rc.ProxiesFile == "" {
		log.Error().Msg("-proxies is required")
		return 2
	}
	proxyLines, err := readLines(rc.ProxiesFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read proxies")
		return 1
	}

	prober := proxy.NewProber(proxy.ProberConfig{
		Target:         cfg.Probe.Target,
		Timeout:        cfg.Probe.Timeout,
		RequestTimeout: cfg.Probe.RequestTimeout,
	})
	allocator := proxy.NewAllocator(prober, cfg.Probe.Concurrency)

	if rc.CheckOnly {
		alloc := allocator.Allocate(ctx, proxyLines, -1)
		for _, res := range alloc.Results {
			if res.OK {
				fmt.Printf("OK\t%s\t%s\t%s\n", res.Normalized, res.Protocol, res.Latency.Round(time.Millisecond))
				continue
			}
			fmt.Printf("FAIL\t%s\t%s\n", logger.Mask(res.Raw, 24), res.Detail)
		}
		fmt.Printf("%d/%d proxies working\n", alloc.WorkingCount(), alloc.Probed())
		return 0
	}

	if rc.AccountsFile == "" {
		log.Error().Msg("-accounts is required")
		return 2
	}
	accountLines, err := readLines(rc.AccountsFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read accounts")
		return 1
	}

	dbConn, err := db.InitDB(&cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return 1
	}
	if sqlDB, err := dbConn.DB(); err == nil {
		defer sqlDB.Close()
	}
	store := service.NewStore(dbConn)

	folderID, err := resolveFolder(ctx, store, rc.Folder, rc.CreateFolder)
	if err != nil {
		log.Error().Err(err).Str("folder", rc.Folder).Msg("Failed to resolve folder")
		return 1
	}

	sessions, err := session.NewFileStore(cfg.Login.SessionDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prepare session directory")
		return 1
	}

	agent := provisioner.NewAgent(remote.NewFactory(remote.Config{
		BaseURL: cfg.Login.BaseURL,
		Timeout: cfg.Login.RequestTimeout,
	}), sessions, store)
	pipeline := provisioner.NewPipeline(allocator, agent, &provisioner.Config{Workers: cfg.Login.Workers})

	report, err := pipeline.Run(ctx, provisioner.Request{
		AccountLines: accountLines,
		ProxyLines:   proxyLines,
		FolderID:     folderID,
	})
	if err != nil {
		var insufficient *provisioner.InsufficientProxiesError
		if errors.As(err, &insufficient) {
			log.Error().
				Int("required", insufficient.Required).
				Int("probed", insufficient.Probed).
				Int("working", insufficient.Working).
				Msg("Not enough working proxies, no logins attempted")
			return 3
		}
		log.Error().Err(err).Msg("Batch aborted")
		return 1
	}

	if err := writeReport(rc.ReportFile, report); err != nil {
		log.Error().Err(err).Str("file", rc.ReportFile).Msg("Failed to write report")
		return 1
	}
	fmt.Println(report.Summary())
	log.Info().Str("file", rc.ReportFile).Msg("Report written")
	return 0
}

func resolveFolder(ctx context.Context, store *service.Store, name string, create bool) (*uint, error) {
	if name == "" {
		return nil, nil
	}
	folder, err := store.GetFolderByName(ctx, name)
	if errors.Is(err, service.ErrFolderNotFound) && create {
		folder, err = store.InsertFolder(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	return &folder.ID, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func writeReport(path string, report *provisioner.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := report.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
