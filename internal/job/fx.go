package job

import (
	"github.com/smallbiznis/payflow/internal/job/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("job.directory",
	fx.Provide(repository.Provide),
)
