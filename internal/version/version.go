package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Заполняются при сборке:
// -ldflags "-X github.com/vladislavdragonenkov/storefront/internal/version.version=v1.2.0"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// Version — только номер версии, для service.version и health-ответа.
func Version() string { return version }

func String() string {
	return fmt.Sprintf("storefront version=%s commit=%s date=%s", version, commit, date)
}

// Fields возвращает сведения о сборке для стартового лога.
func Fields() log.Fields {
	return log.Fields{"version": version, "commit": commit, "build_date": date}
}
