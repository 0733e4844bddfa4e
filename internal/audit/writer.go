package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type store interface {
	Save(ctx context.Context, rec RollAudit) error
}

type gormStore struct {
	db *gorm.DB
}

func (s gormStore) Save(ctx context.Context, rec RollAudit) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_id"}},
			DoNothing: true,
		}).
		Create(&rec).Error
}

// Open connects to postgres and makes sure the roll_audit table exists.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.AutoMigrate(&RollAudit{}); err != nil {
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return db, nil
}

// Writer persists roll events off the room goroutines. Record never blocks;
// when the buffer is full the event is dropped and logged.
type Writer struct {
	store  store
	queue  chan RollAudit
	logger *zap.SugaredLogger
}

func NewWriter(db *gorm.DB, buffer int, logger *zap.SugaredLogger) *Writer {
	return newWriter(gormStore{db: db}, buffer, logger)
}

func newWriter(s store, buffer int, logger *zap.SugaredLogger) *Writer {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Writer{store: s, queue: make(chan RollAudit, buffer), logger: logger}
}

func (w *Writer) Record(roomCode string, e engine.FeedEntry) {
	if !audited(e.Type) {
		return
	}
	rec, err := newRecord(roomCode, e)
	if err != nil {
		w.logger.Warnw("audit: encode entry", "room", roomCode, "entry", e.ID, "error", err)
		return
	}
	rec.CreatedAt = time.Now()

	select {
	case w.queue <- rec:
	default:
		w.logger.Warnw("audit: queue full, dropping entry", "room", roomCode, "entry", e.ID, "type", e.Type)
	}
}

// Run saves queued records until ctx is done, then flushes what is still
// buffered using a short grace period.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case rec := <-w.queue:
			w.save(ctx, rec)
		case <-ctx.Done():
			w.flush()
			return
		}
	}
}

func (w *Writer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-w.queue:
			w.save(ctx, rec)
		default:
			return
		}
	}
}

func (w *Writer) save(ctx context.Context, rec RollAudit) {
	if err := w.store.Save(ctx, rec); err != nil {
		w.logger.Errorw("audit: save entry", "room", rec.RoomCode, "entry", rec.EntryID, "error", err)
	}
}
