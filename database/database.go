package database

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

//go:embed migrations
var embedMigrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownDriver = errors.New("unknown database driver")
)

// Database wraps a gorm connection, with each operation running in its own transaction.
type Database struct {
	db     *gorm.DB
	driver string
	log    *zap.SugaredLogger
}

func NewDatabase(driver string, dsn string, log *zap.Logger) (*Database, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = gormpostgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownDriver, driver)
	}
	if log == nil {
		log = zap.L()
	}
	gormLog := zapgorm2.New(log.Named("gorm"))
	gormLog.IgnoreRecordNotFoundError = true
	gormLog.SetAsDefault()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite only tolerates one writer, so the pool is one connection and transactions are serialised
		sqlDB.SetMaxOpenConns(1)
	}
	return &Database{db: db, driver: driver, log: log.Sugar().Named("database")}, nil
}

func (d *Database) Migrate() error {
	d.log.Info("running database migrations")
	fs, err := iofs.New(embedMigrations, "migrations/"+d.driver)
	if err != nil {
		return err
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	var driver migratedb.Driver
	switch d.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(sqlDB, &postgres.Config{})
	default:
		driver, err = sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	}
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, d.driver, driver)
	if err != nil {
		return err
	}
	err = m.Up()
	switch err {
	case nil:
		d.log.Info("database migration complete")
	case migrate.ErrNoChange:
		d.log.Info("no database migration required")
	default:
		return err
	}
	return nil
}

func (d *Database) Close() error {
	var result error
	if sqlDB, err := d.db.DB(); err != nil {
		result = multierror.Append(result, err)
	} else if err := sqlDB.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetOrCreateTarget returns the target with the given name and kind, creating it with settings if it does not exist.
func (d *Database) GetOrCreateTarget(name string, kind downloader.TargetKind, settings Settings) (target *Target, created bool, err error) {
	err = d.db.Transaction(func(tx *gorm.DB) error {
		target = &Target{}
		err := tx.Where("name = ? AND kind = ?", name, kind).First(target).Error
		if err == nil {
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		target = &Target{
			Name:            name,
			Kind:            kind,
			Settings:        settings,
			Active:          true,
			DownloadEnabled: true,
		}
		created = true
		return tx.Create(target).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get or create target %v/%v: %w", kind, name, err)
	}
	return target, created, nil
}

func (d *Database) CreateTarget(target *Target) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(target).Error
	})
}

func (d *Database) GetTargetByID(id RowID) (*Target, error) {
	target := &Target{}
	if err := d.db.First(target, id).Error; err != nil {
		return nil, notFound(err)
	}
	return target, nil
}

func (d *Database) GetTargetByName(name string, kind downloader.TargetKind) (*Target, error) {
	target := &Target{}
	if err := d.db.Where("name = ? AND kind = ?", name, kind).First(target).Error; err != nil {
		return nil, notFound(err)
	}
	return target, nil
}

// ListTargets returns all targets ordered by name, or only those active and enabled for download.
func (d *Database) ListTargets(activeOnly bool) ([]Target, error) {
	var targets []Target
	q := d.db.Order("kind, name")
	if activeOnly {
		q = q.Where("active = ? AND download_enabled = ?", true, true)
	}
	if err := q.Find(&targets).Error; err != nil {
		return nil, err
	}
	return targets, nil
}

// UpdateTarget saves every field of the target except DateLimit, which only moves through AdvanceDateLimit.
func (d *Database) UpdateTarget(target *Target) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(target).Select("*").Omit("id", "date_limit", "created_at").Updates(target)
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (d *Database) SetTargetActive(id RowID, active bool) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Target{}).Where("id = ?", id).Update("active", active)
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (d *Database) SetTargetDownloadEnabled(id RowID, enabled bool) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Target{}).Where("id = ?", id).Update("download_enabled", enabled)
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AdvanceDateLimit raises the target's date limit to ts, and never lowers it. The returned bool is whether it moved.
func (d *Database) AdvanceDateLimit(id RowID, ts int64) (bool, error) {
	var moved bool
	err := d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Target{}).Where("id = ? AND date_limit < ?", id, ts).Update("date_limit", ts)
		moved = res.RowsAffected > 0
		return res.Error
	})
	return moved, err
}

func (d *Database) CreateRun(downloadWorkers int) (*Run, error) {
	run := &Run{
		StartedAt:         time.Now(),
		DownloadWorkers:   downloadWorkers,
		ExtractionWorkers: 1,
	}
	err := d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun records the end time and final counters of the run.
func (d *Database) FinishRun(run *Run) error {
	if run.EndedAt == nil {
		now := time.Now()
		run.EndedAt = &now
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Save(run).Error
	})
}

func (d *Database) GetRun(id RowID) (*Run, error) {
	run := &Run{}
	if err := d.db.First(run, id).Error; err != nil {
		return nil, notFound(err)
	}
	return run, nil
}

// CreatePost inserts the post unless one with the same URL already exists, reporting whether it was inserted.
func (d *Database) CreatePost(post *Post) (bool, error) {
	if post.Status == "" {
		post.Status = PostPending
	}
	var created bool
	err := d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).Create(post)
		created = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to create post %v: %w", post.URL, err)
	}
	return created, nil
}

func (d *Database) GetPostByURL(url string) (*Post, error) {
	post := &Post{}
	if err := d.db.Where("url = ?", url).First(post).Error; err != nil {
		return nil, notFound(err)
	}
	return post, nil
}

// RetryPost moves a post recorded by an earlier run into runID, so it can be extracted again.
func (d *Database) RetryPost(id RowID, runID RowID) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Post{}).Where("id = ?", id).Updates(map[string]any{"run_id": runID, "status": PostPending, "error": ""})
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (d *Database) SetPostStatus(id RowID, status PostStatus, message string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&Post{}).Where("id = ?", id).Updates(map[string]any{"status": status, "error": message}).Error
	})
}

func (d *Database) ListPosts(runID RowID) ([]Post, error) {
	var posts []Post
	if err := d.db.Where("run_id = ?", runID).Order("id").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (d *Database) CreateContent(content *Content) error {
	if content.Status == "" {
		content.Status = ContentPending
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(content).Error
	})
}

func (d *Database) GetContent(id RowID) (*Content, error) {
	content := &Content{}
	if err := d.db.First(content, id).Error; err != nil {
		return nil, notFound(err)
	}
	return content, nil
}

// FinishContent moves a pending Content row to its final status. Rows that are no longer pending are left alone, and
// false is returned.
func (d *Database) FinishContent(id RowID, result ContentResult) (bool, error) {
	var updated bool
	err := d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Content{}).
			Where("id = ? AND status = ?", id, ContentPending).
			Updates(map[string]any{
				"status": result.Status,
				"error":  result.Error,
				"hash":   result.Hash,
				"path":   result.Path,
			})
		updated = res.RowsAffected > 0
		return res.Error
	})
	return updated, err
}

// ResetContent returns a pending or failed Content row to pending under runID. Rows that were downloaded or found to
// be duplicates are left alone, and false is returned.
func (d *Database) ResetContent(id RowID, runID RowID) (bool, error) {
	var reset bool
	err := d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Content{}).
			Where("id = ? AND status IN ?", id, []ContentStatus{ContentPending, ContentError}).
			Updates(map[string]any{"status": ContentPending, "error": "", "run_id": runID})
		reset = res.RowsAffected > 0
		return res.Error
	})
	return reset, err
}

func (d *Database) ListPostContent(postID RowID) ([]Content, error) {
	var contents []Content
	if err := d.db.Where("post_id = ?", postID).Order("id").Find(&contents).Error; err != nil {
		return nil, err
	}
	return contents, nil
}

func (d *Database) ListContent(runID RowID) ([]Content, error) {
	var contents []Content
	if err := d.db.Where("run_id = ?", runID).Order("id").Find(&contents).Error; err != nil {
		return nil, err
	}
	return contents, nil
}
