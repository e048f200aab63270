package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"driftchat/internal/config"
	"driftchat/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Store.
type Store struct {
	db *gorm.DB
}

type userModel struct {
	ID        string `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex"`
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type messageModel struct {
	ID         string `gorm:"primaryKey"`
	AuthorID   string `gorm:"index"`
	AuthorName string
	Text       string
	CreatedAt  time.Time `gorm:"index"`
}

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userModel{}, &messageModel{})
}

// CreateUser stores a new user record.
func (s *Store) CreateUser(ctx context.Context, user *storage.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	model := userModel{
		ID:        user.ID,
		Username:  user.Username,
		Password:  user.Password,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	var model userModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		return nil, mapNotFound(err)
	}
	user := &storage.User{
		ID:        model.ID,
		Username:  model.Username,
		Password:  model.Password,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	return user, nil
}

// CreateMessage persists a new chat message, assigning its id and timestamp.
func (s *Store) CreateMessage(ctx context.Context, authorID, authorName, text string) (*storage.Message, error) {
	model := messageModel{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		AuthorName: authorName,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, err
	}
	return toMessage(model), nil
}

// GetMessageByID retrieves a single message.
func (s *Store) GetMessageByID(ctx context.Context, id string) (*storage.Message, error) {
	var model messageModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return toMessage(model), nil
}

// DeleteMessage removes a message by id. Deleting an absent id is not an
// error; the caller treats it as already deleted.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&messageModel{}).Error
}

// ListMessages returns up to limit messages in creation order. A limit of
// zero or less returns the full history.
func (s *Store) ListMessages(ctx context.Context, limit int) ([]storage.Message, error) {
	query := s.db.WithContext(ctx).Order("created_at asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []messageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	messages := make([]storage.Message, 0, len(models))
	for _, model := range models {
		messages = append(messages, *toMessage(model))
	}
	return messages, nil
}

func toMessage(model messageModel) *storage.Message {
	return &storage.Message{
		ID:         model.ID,
		AuthorID:   model.AuthorID,
		AuthorName: model.AuthorName,
		Text:       model.Text,
		CreatedAt:  model.CreatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}
