package models

const (
	StatusDraft      = "draft"
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

const (
	KindLab           = "lab"
	KindEquipmentUnit = "equipment_unit"
)

const (
	TxCommit  = "commit"
	TxSpend   = "spend"
	TxRelease = "release"
)

const (
	BudgetHealthy    = "healthy"
	BudgetModerate   = "moderate"
	BudgetWarning    = "warning"
	BudgetCritical   = "critical"
	BudgetOverBudget = "over_budget"
)

const (
	AlertWarning   = "warning"
	AlertCritical  = "critical"
	AlertOverspent = "overspent"
)

const (
	PatternDaily    = "daily"
	PatternWeekly   = "weekly"
	PatternBiweekly = "biweekly"
	PatternMonthly  = "monthly"
)

const (
	CapApprove = "approve"
	CapSystem  = "system"
)

const (
	// DefaultLabCutoffHours минимальное время до начала, после которого отмена лаборатории запрещена
	DefaultLabCutoffHours = 24

	// DefaultEquipmentCutoffHours окно отмены для отдельного оборудования
	DefaultEquipmentCutoffHours = 2

	// DefaultSweepIntervalSeconds период фонового поиска неявок
	DefaultSweepIntervalSeconds = 60

	// DefaultLockWaitMillis время ожидания блокировки ресурса до ответа Busy
	DefaultLockWaitMillis = 500

	// DefaultMaxBookingDays максимальный горизонт бронирования
	DefaultMaxBookingDays = 365

	// WorkerQueueSize размер очереди воркера персистентности
	WorkerQueueSize = 1000

	// DefaultRedisTTL время жизни снапшота брони в Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 часа в секундах
)

// LiveStatuses are the statuses that hold a resource against conflicts.
var LiveStatuses = map[string]bool{
	StatusPending:    true,
	StatusApproved:   true,
	StatusConfirmed:  true,
	StatusInProgress: true,
}

// TerminalStatuses admit no further transitions.
var TerminalStatuses = map[string]bool{
	StatusRejected:  true,
	StatusCompleted: true,
	StatusCancelled: true,
	StatusNoShow:    true,
}
