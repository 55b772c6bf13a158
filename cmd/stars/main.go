package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/starslab/stars/build"
	"github.com/starslab/stars/internal/config"
	"github.com/starslab/stars/modules/stars"
	"github.com/starslab/stars/persist"
)

// Exit codes, per section 6: 0 is a normal shutdown, everything else is a
// startup failure the operator needs to act on.
const (
	exitCodeConfigLoad  = 1
	exitCodeBind        = 2
	exitCodeListenerErr = 3
)

var (
	flagPort    int
	flagLibDir  string
	flagKeyDir  string
	flagTimeout int
	flagIniPath string
)

func die(code int, args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(code)
}

func run(cmd *cobra.Command, args []string) {
	rc, err := config.Load(flagIniPath, flagPort, flagLibDir, flagKeyDir)
	if err != nil {
		die(exitCodeConfigLoad, "config error:", err)
	}

	log, err := persist.NewLogger(filepath.Join(rc.KeyDir, "stars.log"))
	if err != nil {
		die(exitCodeConfigLoad, "log error:", err)
	}
	defer log.Close()

	cfg, err := stars.LoadConfig(rc.LibDir, rc.KeyDir, rc.Port)
	if err != nil {
		log.Errorln("config load failed:", err)
		die(exitCodeConfigLoad, "config load failed:", err)
	}

	readTimeout := time.Duration(flagTimeout) * time.Millisecond
	srv, err := stars.New(cfg, log.Logger, readTimeout)
	if err != nil {
		log.Errorln("bind failed:", err)
		die(exitCodeBind, "bind failed:", err)
	}

	log.Printf("STARTUP: stars %s (rev %s, built %s) listening on %s", build.Version, build.GitRevision, build.BuildTime, srv.Addr())
	if err := srv.Serve(); err != nil {
		log.Errorln("listener error:", err)
		die(exitCodeListenerErr, "listener error:", err)
	}
	log.Println("SHUTDOWN: stars server stopped listening")
}

func main() {
	root := &cobra.Command{
		Use:   "stars",
		Short: "STARS message-routing server v" + build.Version,
		Long:  "STARS message-routing server v" + build.Version,
		Run:   run,
	}

	root.Flags().IntVar(&flagPort, "port", 0, "TCP port to bind (overrides starsport)")
	root.Flags().StringVar(&flagLibDir, "libdir", "", "directory containing pattern files (overrides starslib)")
	root.Flags().StringVar(&flagKeyDir, "keydir", "", "directory containing the server secret (overrides starskey)")
	root.Flags().IntVar(&flagTimeout, "timeout", 0, "per-connection read timeout in milliseconds (0 disables)")
	root.Flags().StringVar(&flagIniPath, "config", "stars.ini", "path to the runtime INI config file")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeConfigLoad)
	}
}
