// Command pitchtrack turns per-frame detections of a football match into
// tracks, team labels and pitch analytics stored in SQLite.
//
//	pitchtrack [flags] detections.jsonl [more.jsonl ...]
//	pitchtrack [-db path] migrate <up|down|status|version|force|help>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pitch.report/internal/db"
	"github.com/banshee-data/pitch.report/internal/fsutil"
	"github.com/banshee-data/pitch.report/internal/match/storage/sqlite"
	"github.com/banshee-data/pitch.report/internal/monitoring"
	"github.com/banshee-data/pitch.report/internal/units"
	"github.com/banshee-data/pitch.report/internal/version"
)

var (
	dbPath      = flag.String("db", "pitch.db", "Path to the SQLite trajectory database")
	configFile  = flag.String("config", "", "Tuning config JSON file (built-in defaults when empty)")
	calibFile   = flag.String("calibration", "", "Pitch calibration JSON file; without it the run is pixel-only")
	videoFile   = flag.String("video", "", "Video to sample jersey colours from (single input only)")
	videoID     = flag.String("video-id", "", "Video id (single input only; defaults to the detections file name)")
	resume      = flag.Bool("resume", false, "Resume each video from its last checkpoint")
	parallel    = flag.Int("parallel", 2, "Videos processed at once (0 for no limit)")
	homeLeft    = flag.Bool("home-attacks-left", false, "Home team attacks the goal at x=0")
	reclassify  = flag.Int("reclassify-frame", 0, "Refit team colours after this frame, e.g. half time (0 disables)")
	speedUnits  = flag.String("units", units.KMPH, "Speed units for the summary: "+units.GetValidUnitsString())
	reportPath  = flag.String("report", "", "Write the JSON report to this file, or one file per video into this directory")
	debugListen = flag.String("debug-listen", "", "Serve run status and the database console on this address")
	debugWait   = flag.Bool("debug-wait", false, "Keep the debug server up after the run until interrupted")
	logDiag     = flag.String("log-diag", "", "Diagnostic log file ('-' for stderr)")
	logTrace    = flag.String("log-trace", "", "Per-frame trace log file ('-' for stderr)")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] detections.jsonl [more.jsonl ...]\n", os.Args[0])
	fmt.Fprintf(out, "       %s [-db path] migrate <action>\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("pitchtrack", version.String())
		return
	}

	args := flag.Args()
	if len(args) > 0 && args[0] == "migrate" {
		if err := db.RunMigrateCommand(args[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	opts, err := optionsFromFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pitchtrack: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	if err := serve(opts); err != nil {
		log.Fatalf("pitchtrack: %v", err)
	}
}

// serve owns the process resources around one invocation of run.
func serve(opts options) error {
	streams, err := monitoring.OpenLogStreams(*logDiag, *logTrace)
	if err != nil {
		return err
	}
	defer streams.Close()
	streams.Install()

	database, err := db.NewDB(opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board := newStatusBoard()
	srvCtx, stopServer := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if *debugListen != "" {
		mux := http.NewServeMux()
		database.AttachAdminRoutes(mux)
		mux.Handle("/api/status", board)

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(srvCtx, *debugListen, mux)
		}()
	}

	runErr := run(ctx, opts, sqlite.NewStore(database), board, fsutil.OSFileSystem{}, os.Stdout)

	if *debugListen != "" && *debugWait && ctx.Err() == nil {
		log.Printf("run finished; debug server still on %s, interrupt to exit", *debugListen)
		<-ctx.Done()
	}
	stopServer()
	wg.Wait()
	return runErr
}

// serveDebug runs an HTTP server on addr until ctx is done.
func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("debug server failed: %v", err)
		}
	}()
	log.Printf("debug server listening on %s", addr)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("debug server force close error: %v", err)
		}
	}
}
