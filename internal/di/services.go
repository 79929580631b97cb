package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktrader/internal/clientdata"
	"github.com/aristath/stocktrader/internal/clients/yahoo"
	"github.com/aristath/stocktrader/internal/config"
	"github.com/aristath/stocktrader/internal/modules/ledger"
)

// InitializeServices creates repositories, the price client and the ledger service.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.LedgerDB == nil || container.ClientDataDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}

	container.PositionRepo = ledger.NewPositionRepository(container.LedgerDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	container.PriceClient = yahoo.NewClient(yahoo.Config{
		BaseURL:           cfg.Price.APIURL,
		Timeout:           cfg.Price.Timeout,
		CacheTTL:          cfg.Price.CacheTTL,
		RequestsPerSecond: cfg.Price.RequestsPerSecond,
		Burst:             cfg.Price.Burst,
	}, container.ClientDataRepo, container.Metrics, log)

	container.LedgerService = ledger.NewService(
		container.PositionRepo,
		container.PriceClient,
		ledger.ReportConfig{
			Concurrency:   cfg.Report.Concurrency,
			LookupTimeout: cfg.Report.LookupTimeout,
		},
		container.Metrics,
		log,
	)

	return nil
}
