package cli

import (
	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/observability"
	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// Pipeline service instances, set during app initialization in app.go.
var (
	BasePath  string
	Cfg       *models.Config
	Threads   storage.ThreadRepository
	Artifacts *storage.ArtifactStore
	Events    core.EventLogger
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
	RunMetrics  *observability.RunMetrics
)
