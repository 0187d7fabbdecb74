package graph

import (
	"testing"
	"time"

	"github.com/dshills/wavegraph/graph/emit"
)

func TestOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr bool
		check   func(t *testing.T, cfg executorConfig)
	}{
		{"ceiling", WithSafetyCeiling(40), false, func(t *testing.T, cfg executorConfig) {
			if cfg.safetyCeiling != 40 {
				t.Errorf("safetyCeiling = %d", cfg.safetyCeiling)
			}
		}},
		{"zero ceiling", WithSafetyCeiling(0), true, nil},
		{"max concurrent", WithMaxConcurrent(3), false, func(t *testing.T, cfg executorConfig) {
			if cfg.maxConcurrent != 3 {
				t.Errorf("maxConcurrent = %d", cfg.maxConcurrent)
			}
		}},
		{"negative max concurrent", WithMaxConcurrent(-1), true, nil},
		{"node timeout", WithNodeTimeout(time.Minute), false, func(t *testing.T, cfg executorConfig) {
			if cfg.nodeTimeout != time.Minute {
				t.Errorf("nodeTimeout = %v", cfg.nodeTimeout)
			}
		}},
		{"negative timeout", WithNodeTimeout(-time.Second), true, nil},
		{"nil emitter", WithEmitter(nil), false, func(t *testing.T, cfg executorConfig) {
			if _, ok := cfg.emitter.(*emit.NullEmitter); !ok {
				t.Errorf("emitter = %T, want *emit.NullEmitter", cfg.emitter)
			}
		}},
		{"buffered emitter", WithEmitter(emit.NewBufferedEmitter()), false, func(t *testing.T, cfg executorConfig) {
			if _, ok := cfg.emitter.(*emit.BufferedEmitter); !ok {
				t.Errorf("emitter = %T", cfg.emitter)
			}
		}},
		{"thread id func", WithThreadIDFunc(func() string { return "fixed" }), false, func(t *testing.T, cfg executorConfig) {
			if cfg.newThreadID() != "fixed" {
				t.Error("thread id func not applied")
			}
		}},
		{"nil thread id func", WithThreadIDFunc(nil), true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			err := tt.opt(&cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if cfg.safetyCeiling != DefaultSafetyCeiling || cfg.maxConcurrent != 0 || cfg.nodeTimeout != 0 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.metrics != nil {
		t.Error("metrics should be off by default")
	}
	if a, b := cfg.newThreadID(), cfg.newThreadID(); a == b {
		t.Errorf("generated ids should differ, got %q twice", a)
	}
}
