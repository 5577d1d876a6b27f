package notification

import (
	"github.com/smallbiznis/payflow/internal/notification/domain"
	"github.com/smallbiznis/payflow/internal/notification/repository"
	"github.com/smallbiznis/payflow/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) domain.Notifier { return s }),
)
