package app

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"power-price-alerts/internal/fetcher"
	"power-price-alerts/internal/service"
	"power-price-alerts/internal/storage"
)

// SimulateAlert 使用给定价格代替行情源执行一次完整周期，写入配置的存储并走配置的告警通道。
func (a *App) SimulateAlert(ctx context.Context, price decimal.Decimal, out io.Writer) error {
	kv, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	defer closeNotifier()

	svc := service.New(a.Config, a.serviceDeps(kv, &fetcher.Static{Price: price}, notifier), a.Logger)
	res, err := svc.RunCycle(ctx)
	if err != nil {
		return err
	}
	printCycle(out, res)
	return nil
}

// SetThresholds applies an override through the same validation as /set.
func (a *App) SetThresholds(ctx context.Context, override storage.ThresholdOverride, out io.Writer) error {
	if override.Min == nil && override.Max == nil {
		return fmt.Errorf("at least one of --min or --max is required")
	}

	kv, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(a.Config, a.serviceDeps(kv, nil, nil), a.Logger)
	th, err := svc.ConfigureThresholds(ctx, override)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "min %s / max %s ct/kWh\n", th.Min.StringFixed(2), th.Max.StringFixed(2))
	return nil
}
