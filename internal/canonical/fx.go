package canonical

import (
	"github.com/azerion/cloudledger/internal/canonical/domain"
	"github.com/azerion/cloudledger/internal/canonical/service"
	"github.com/azerion/cloudledger/internal/servicetype"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("canonical",
	fx.Provide(NewService),
)

func NewService(db *gorm.DB, log *zap.Logger, genID *snowflake.Node, cache *servicetype.Cache) domain.Service {
	return service.NewService(service.ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      genID,
		Categories: cache,
	})
}
