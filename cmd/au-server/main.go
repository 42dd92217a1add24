package main

import (
	"flag"
	"log/slog"
	"os"

	"auattend-backend/lib/attendstore"
	"auattend-backend/lib/configutil"
	configsqlite "auattend-backend/lib/configutil/sqlite"
	"auattend-backend/lib/restyutil"
	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/lib/serviceutil"
	"auattend-backend/lib/telemetry"
	"auattend-backend/services/attendance"
	"auattend-backend/services/attendance/poller"
	"auattend-backend/services/attendance/server"
	"auattend-backend/services/keystore"
	"auattend-backend/services/notify"
)

type Config struct {
	Port int `json:"port"`
	// base64-encoded 32 byte key protecting stored passwords
	EncryptionKey string              `json:"encryption_key"`
	Database      configsqlite.Struct `json:"database"`
	Portal        attendance.Config   `json:"portal"`
	Server        server.Config       `json:"server"`
	Poller        poller.Config       `json:"poller"`
	Fcm           notify.FCMConfig    `json:"fcm"`
	Email         notify.EmailConfig  `json:"email"`
	// when set, every portal exchange is dumped to this directory
	DebugHttpDir string `json:"debug_http_dir"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	telemetry.InitSlog(*verbose)
	ctx := serviceutil.SignalContext()

	err := telemetry.SetupFromEnv(ctx, "au-server")
	if err != nil {
		serviceutil.Fatal("init telemetry", err)
	}
	defer telemetry.Shutdown(ctx)
	telemetry.InstrumentPerfStats(ctx)

	cfg, err := configutil.Read[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.DebugHttpDir != "" {
		adamas.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(cfg.DebugHttpDir))
	}

	key := cfg.EncryptionKey
	if key == "" {
		key = os.Getenv("ENC_KEY")
	}
	cipher, err := keystore.NewCipher(key)
	if err != nil {
		serviceutil.Fatal("init credential cipher", err)
	}

	db, err := cfg.Database.OpenDB(attendstore.Schema() + "\n" + keystore.Schema())
	if err != nil {
		serviceutil.Fatal("open database", err)
	}

	keys := keystore.NewService(db, cipher)
	store := attendstore.NewStore(db)

	var sinks []notify.Sink
	if cfg.Fcm.ServerKey != "" {
		sinks = append(sinks, notify.NewFCMSink(cfg.Fcm))
	}
	if cfg.Email.Host != "" {
		sinks = append(sinks, notify.NewEmailSink(cfg.Email))
	}
	if len(sinks) == 0 {
		slog.Warn("no notification sinks configured, transitions will only be recorded")
	}

	notifier := notify.NewNotifier(store, keys, sinks...)
	service := attendance.NewService(cfg.Portal, keys, store, notifier)

	go func() {
		err := poller.New(cfg.Poller, service, keys).Run(ctx)
		if err != nil && ctx.Err() == nil {
			serviceutil.Fatal("run poller", err)
		}
	}()

	router := server.New(cfg.Server, service, keys, notifier).Router(slog.Default())

	go serviceutil.StartHttpServer(cfg.Port, router)
	<-ctx.Done()
}
