// pendrag - pen drag threshold daemon
// Holds pen contacts at their touch-down point until the pen travels past
// a threshold, so taps register as clean clicks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pendrag/internal/api"
	"pendrag/internal/autostart"
	"pendrag/internal/config"
	"pendrag/internal/filter"
	"pendrag/internal/input"
	"pendrag/internal/logging"
	"pendrag/internal/network"
	"pendrag/internal/osutils"
	"pendrag/internal/protocol"
	"pendrag/internal/replay"
	"pendrag/internal/report"
	"pendrag/internal/service"
	"pendrag/internal/tray"
)

var version = "0.1.0"

func main() {
	cobra.CheckErr(NewCmd().ExecuteContext(context.Background()))
}

func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "pendrag [command] [flags] [args]",
		Short:         "pendrag filters pen reports so taps land as clicks",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "`<path>` to a .json or .yaml config file")

	runCmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run the daemon",
		Args:  cobra.NoArgs,
		RunE:  doRun,
	}
	runCmd.Flags().Bool("tray", false, "show the system tray icon")

	replayCmd := &cobra.Command{
		Use:   "replay [flags] <file.jsonl>",
		Short: "Run a recorded report stream through the filter",
		Args:  cobra.ExactArgs(1),
		RunE:  doReplay,
	}
	replayCmd.Flags().Float64P("threshold", "t", filter.DefaultThreshold, "drag threshold in output units")
	replayCmd.Flags().Bool("smooth", false, "enable smooth transition")

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Show the filter settings",
		Args:  cobra.NoArgs,
		RunE:  doDescribe,
	}

	listenCmd := &cobra.Command{
		Use:   "listen [flags] [host:port]",
		Short: "Receive filtered reports over UDP and print them as JSON lines",
		Args:  cobra.MaximumNArgs(1),
		RunE:  doListen,
	}

	watchCmd := &cobra.Command{
		Use:   "watch [flags] [host:port]",
		Short: "Follow the WebSocket report stream of a daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE:  doWatch,
	}
	watchCmd.Flags().String("token", "", "API bearer `<token>`")

	autostartCmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage start on login",
	}
	autostartCmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Start pendrag on login",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := autostart.Enable(); err != nil {
					return err
				}
				path, _ := autostart.Path()
				cmd.Printf("Autostart enabled: %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Do not start pendrag on login",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := autostart.Disable(); err != nil {
					return err
				}
				cmd.Println("Autostart disabled")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether pendrag starts on login",
			RunE: func(cmd *cobra.Command, args []string) error {
				cmd.Printf("Autostart enabled: %v\n", autostart.IsEnabled())
				return nil
			},
		},
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("pendrag version %s\n", version)
		},
	}

	rootCmd.AddCommand(
		runCmd,
		replayCmd,
		describeCmd,
		listenCmd,
		watchCmd,
		autostartCmd,
		versionCmd,
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	var cfgMgr *config.Manager
	if path == "" {
		cfgMgr, err = config.NewManager()
	} else {
		cfgMgr, err = config.NewManagerAt(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	if err := cfgMgr.Load(); err != nil {
		return nil, err
	}
	return cfgMgr, nil
}

func doRun(cmd *cobra.Command, args []string) error {
	cfgMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := cfgMgr.Get()

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	log.Printf("pendrag %s starting (config %s)", version, cfgMgr.Path())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runtime.GOOS == "windows" {
		go func() {
			for _, rule := range osutils.FirewallRules(cfg) {
				if err := osutils.EnsureFirewallRule(rule); err != nil {
					log.Printf("Firewall warning: %v", err)
				}
			}
		}()
	}

	svc := service.New(cfgMgr)
	if cfg.General.LogReports {
		svc.AddSink(service.LogSink)
	}

	sender := network.NewUDPSender(cfg.Network.ForwardAddr)
	if err := sender.Start(); err != nil {
		return fmt.Errorf("forward %s: %w", cfg.Network.ForwardAddr, err)
	}
	defer sender.Stop()
	svc.AddSink(func(e report.Event, _ filter.Phase) {
		sender.Send(e)
	})

	if cfg.API.Enabled {
		api.Version = version
		apiServer := api.NewServer(cfgMgr, svc)
		svc.AddSink(apiServer.Sink())
		go func() {
			if err := apiServer.Start(cfg.API.Port); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			apiServer.Shutdown(shutdownCtx)
		}()
	}

	ingest := network.NewUDPIngest(cfg.Network.IngestAddr)
	ingest.OnEvent = func(e report.Event) {
		svc.Submit(e)
	}
	if err := ingest.Start(); err != nil {
		return fmt.Errorf("ingest %s: %w", cfg.Network.IngestAddr, err)
	}
	defer ingest.Stop()

	if cfg.Input.Enabled {
		reader := input.NewReader(cfg.Input.Device, cfg.Input.Grab)
		if err := reader.Start(); err != nil {
			log.Printf("Warning: local input %s unavailable: %v", cfg.Input.Device, err)
		} else {
			svc.SetDeviceArea(cfg.Input.Device, reader.Ranges().Box())
			go func() {
				for e := range reader.Events() {
					svc.Submit(e)
				}
			}()
			defer reader.Stop()
		}
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- svc.Run(ctx)
	}()

	showTray, _ := cmd.Flags().GetBool("tray")
	if showTray || cfg.General.Tray {
		t := tray.New("pendrag", "pendrag - pen drag threshold")
		tray.NewMenu(t, cfgMgr)
		go func() {
			<-ctx.Done()
			t.Stop()
		}()
		log.Println("pendrag running in the system tray")
		// systray needs the main goroutine
		t.Run(stop)
	} else {
		log.Println("pendrag running. Press Ctrl+C to stop.")
		<-ctx.Done()
	}

	log.Println("Shutting down...")
	if err := <-runErr; err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func doReplay(cmd *cobra.Command, args []string) error {
	threshold, err := cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return err
	}
	smooth, err := cmd.Flags().GetBool("smooth")
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	events, err := replay.Load(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	rows, err := replay.Run(events, filter.Config{Threshold: threshold, SmoothTransition: smooth})
	if err != nil {
		return err
	}
	replay.Render(cmd.OutOrStdout(), rows)
	return nil
}

func doDescribe(cmd *cobra.Command, args []string) error {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.SetTitle(filter.PluginName)
	t.AppendHeader(table.Row{"PROPERTY", "KEY", "TYPE", "UNIT", "DEFAULT", "DESCRIPTION"})
	for _, p := range filter.Properties() {
		t.AppendRow(table.Row{p.Name, p.Key, p.Kind, p.Unit, p.Default, p.Tooltip})
	}
	t.Render()
	return nil
}

func doListen(cmd *cobra.Command, args []string) error {
	addr := "127.0.0.1:19091"
	if len(args) > 0 {
		addr = args[0]
	}

	receiver := network.NewUDPReceiver(addr)
	if !receiver.Probe() {
		log.Printf("Warning: no answer from %s, listening anyway", addr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	records := newRecordQueue(ctx.Done())
	receiver.OnEvent = records.put
	if err := receiver.Start(); err != nil {
		return err
	}
	defer receiver.Stop()

	for {
		select {
		case rec := <-records.ch:
			if err := enc.Encode(rec); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// recordQueue hands received reports to the writer. A slow writer stalls
// the receive goroutine instead of losing records.
type recordQueue struct {
	ch   chan report.Record
	done <-chan struct{}
}

func newRecordQueue(done <-chan struct{}) recordQueue {
	return recordQueue{ch: make(chan report.Record, 256), done: done}
}

func (q recordQueue) put(e report.Event) {
	select {
	case q.ch <- report.ToRecord(e):
	case <-q.done:
	}
}

func doWatch(cmd *cobra.Command, args []string) error {
	addr := "127.0.0.1:19080"
	if len(args) > 0 {
		addr = args[0]
	}
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	lines := make(chan string, 256)
	client := network.NewWSClient(addr, token)
	client.OnStatus = func(st protocol.StatusPayload) {
		select {
		case lines <- fmt.Sprintf("status: threshold=%g smooth=%v devices=%d",
			st.Threshold, st.SmoothTransition, len(st.Devices)):
		default:
		}
	}
	client.OnReport = func(p protocol.ReportPayload) {
		select {
		case lines <- fmt.Sprintf("%-8s %-12s (%8.2f, %8.2f) p=%.3f %s",
			p.Kind, p.Device, p.X, p.Y, p.Pressure, p.Phase):
		default:
		}
	}
	client.Start()
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for {
		select {
		case line := <-lines:
			fmt.Fprintln(out, line)
		case <-ctx.Done():
			return nil
		}
	}
}
