package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{
		Enabled:       false,
		ServerAddress: "",
		AppName:       "folio",
	})
	if err != nil {
		t.Fatalf("disabled should never error, got: %v", err)
	}
	stop()
	stop()
}

func TestStart_EmptyServerAddress(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())
	stop, err := Start(ctx, Options{Enabled: true, AppName: "folio.server"})
	if err == nil {
		t.Fatal("expected error for empty server address")
	}
	if !strings.Contains(err.Error(), "server address") {
		t.Fatalf("err = %v", err)
	}
	if stop == nil {
		t.Fatal("stop must be non-nil on error")
	}
	stop()
}
