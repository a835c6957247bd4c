// tdc-sync — подстройка VCXO платы LWDO по телеметрии время-цифрового преобразователя.
//
// Демон читает кадры с платы, выделяет ошибку фазы опорного сигнала относительно
// гейта, ведёт петлю DPLL и пишет код подстройки и режим делителя обратно в регистры.
//
// Использование:
//
//	tdc-sync -list-ports                          — перечислить последовательные порты
//	tdc-sync -device /dev/ttyUSB0 -trace run.csv  — запуск с трассой петли
//	tdc-sync -config tdc-sync.yml -step-test      — ступенчатый тест (выход на +предел)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shiwa/timecard-mini/tdc-sync/internal/config"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/logger"
	"github.com/shiwa/timecard-mini/tdc-sync/internal/transport"
	"github.com/shiwa/timecard-mini/tdc-sync/pkg/tdcsync"
)

func main() {
	configPath := flag.String("config", "", "путь к конфигу YAML или TOML (по умолчанию tdc-sync.yml, если есть)")
	device := flag.String("device", "", "порт устройства или tcp://host:port (переопределяет config)")
	driver := flag.String("driver", "", "драйвер транспорта: tarm, bugst, tcp (переопределяет config)")
	baud := flag.Int("baud", 0, "скорость порта (переопределяет config)")
	tracePath := flag.String("trace", "", "CSV трасса петли (переопределяет config)")
	metricsAddr := flag.String("metrics", "", "адрес HTTP для /metrics, например :9110")
	stepTest := flag.Bool("step-test", false, "ступенчатый тест: первые такты выход держится на +пределе")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	listPorts := flag.Bool("list-ports", false, "перечислить последовательные порты и выйти")
	flag.Parse()

	if *listPorts {
		ports, err := transport.ListPorts()
		if err != nil {
			log.Fatalf("список портов: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *device != "" {
		cfg.Device.URL = *device
	}
	if *driver != "" {
		cfg.Device.Driver = *driver
	}
	if *baud != 0 {
		cfg.Device.Baud = *baud
	}
	if *tracePath != "" {
		cfg.Trace.Path = *tracePath
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}
	if *stepTest {
		cfg.DPLL.StepTest = true
	}
	logger.Quiet = *quiet

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	if err := tdcsync.RunDaemon(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("%v", err)
	}
}

// loadConfig читает конфиг; без -config пробует tdc-sync.yml, иначе значения по умолчанию.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("tdc-sync.yml"); err == nil {
		return config.Load("tdc-sync.yml")
	}
	return config.Default(), nil
}
