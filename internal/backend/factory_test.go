package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"ledger/internal/config"
	"ledger/internal/server"
)

func TestCreateBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"memory", Config{Type: MemoryBackend}},
		{"json", Config{Type: JSONBackend, DataDirectory: filepath.Join(dir, "json")}},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "db", "ledger.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := NewFactory(nil).CreateBackend(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Cleanup()

			name, value := "rent", decimal.NewFromInt(-500)
			resp, err := res.Server.Run(ctx, server.CmdAdd, server.Params{Period: "2020", Name: &name, Value: &value})
			if err != nil || resp.ID != 1 {
				t.Fatalf("add = %+v, %v", resp, err)
			}
			periods, err := res.Store.Periods(ctx)
			if err != nil || len(periods) != 1 || periods[0] != "2020" {
				t.Fatalf("periods = %v, %v", periods, err)
			}
		})
	}
}

func TestCreateBackend_Invalid(t *testing.T) {
	tests := []Config{
		{Type: "sheets"},
		{Type: JSONBackend},
		{Type: SQLiteBackend},
		{Type: MemoryBackend, AMQPURL: "amqp://broker"},
	}
	for _, cfg := range tests {
		if _, err := NewFactory(nil).CreateBackend(context.Background(), cfg); err == nil {
			t.Errorf("config %+v accepted", cfg)
		}
	}
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{Storage: "sqlite", SQLitePath: "x.db", DataDir: "d", AMQPURL: "amqp://h", AMQPExchange: "ex"}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.DataDirectory != "d" || cfg.AMQPExchange != "ex" {
		t.Fatalf("cfg = %+v", cfg)
	}
	_, err = FromAppConfig(&config.Config{Storage: "csv"})
	if err == nil || !strings.Contains(err.Error(), "[json memory sqlite]") {
		t.Fatalf("invalid storage: err = %v", err)
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("nil config accepted")
	}
}
