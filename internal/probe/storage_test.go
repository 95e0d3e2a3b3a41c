package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/internal/state"
)

func TestStoragePerMountThresholds(t *testing.T) {
	p := NewStorage(config.Static(config.Config{
		Storage: &config.StorageConfig{
			Directories: map[string]config.MountThreshold{
				"/var": {Threshold: 90},
				"/opt": {Threshold: 80},
			},
		},
	}), nil)
	p.usage = func(ctx context.Context, mount string) (float64, error) {
		if mount == "/var" {
			return 85, nil
		}
		return 85, nil
	}

	res, err := p.Sample(context.Background(), state.NewRecordSet(), time.Now())
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if !res["/var"].Healthy {
		t.Fatalf("expected /var healthy at 85%% of 90%%, got %+v", res["/var"])
	}
	if res["/opt"].Healthy {
		t.Fatalf("expected /opt unhealthy at 85%% of 80%%, got %+v", res["/opt"])
	}
}

func TestStorageSkipsUnreadableMount(t *testing.T) {
	p := NewStorage(config.Static(config.Config{
		Storage: &config.StorageConfig{
			Directories: map[string]config.MountThreshold{
				"/var":    {Threshold: 90},
				"/broken": {Threshold: 90},
			},
		},
	}), nil)
	p.usage = func(ctx context.Context, mount string) (float64, error) {
		if mount == "/broken" {
			return 0, errors.New("stale mount")
		}
		return 50, nil
	}

	res, err := p.Sample(context.Background(), state.NewRecordSet(), time.Now())
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if _, ok := res["/broken"]; ok {
		t.Fatal("expected the unreadable mount omitted")
	}
	if _, ok := res["/var"]; !ok {
		t.Fatal("expected the readable mount still sampled")
	}
}
