package store

import (
	"context"
	"errors"
	"time"

	"omnichannel-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrNoAgentAvailable is returned by AssignAgent when every candidate is
	// offline or at capacity. Callers treat it as a no-op, not a failure.
	ErrNoAgentAvailable = errors.New("store: no agent available")
)

// Store is the single source of truth for customers, conversations, messages
// and agents. All mutation of conversation state goes through its methods so
// the uniqueness invariants hold under concurrent writers.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CustomerInput carries the fields known about a customer at contact time.
// Nil identifier pointers mean "unknown", empty strings on the profile
// fields mean "leave whatever is stored".
type CustomerInput struct {
	Phone         *string
	Email         *string
	ChannelUserID *string
	Name          string
	Location      string
	Timezone      string
	Language      string
	Tier          models.CustomerTier
}

// UpsertCustomer resolves an existing customer by identifier priority
// (phone, then email, then channel-native ID), merges non-empty fields and
// refreshes the last-contact timestamp; otherwise it inserts a new row.
// Concurrent calls for the same identifier are settled by the unique indexes:
// the insert runs ON CONFLICT DO NOTHING and falls back to the lookup.
func (s *Store) UpsertCustomer(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	if existing, err := s.findCustomerByIdentifiers(ctx, in); err == nil {
		return s.mergeCustomer(ctx, existing, in)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	customer := &models.Customer{
		ID:            uuid.NewString(),
		Phone:         in.Phone,
		Email:         in.Email,
		ChannelUserID: in.ChannelUserID,
		Name:          in.Name,
		Location:      in.Location,
		Timezone:      in.Timezone,
		Language:      in.Language,
		Tier:          in.Tier,
		LastContactAt: &now,
	}
	if customer.Tier == "" {
		customer.Tier = models.TierProspect
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(customer)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to a concurrent insert; the winner's row is there now.
		existing, err := s.findCustomerByIdentifiers(ctx, in)
		if err != nil {
			return nil, err
		}
		return s.mergeCustomer(ctx, existing, in)
	}
	return customer, nil
}

func (s *Store) findCustomerByIdentifiers(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	lookups := []struct {
		column string
		value  *string
	}{
		{"phone", in.Phone},
		{"email", in.Email},
		{"channel_user_id", in.ChannelUserID},
	}

	for _, l := range lookups {
		if l.value == nil || *l.value == "" {
			continue
		}
		var customer models.Customer
		err := s.db.WithContext(ctx).Where(l.column+" = ?", *l.value).First(&customer).Error
		if err == nil {
			return &customer, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (s *Store) mergeCustomer(ctx context.Context, existing *models.Customer, in CustomerInput) (*models.Customer, error) {
	now := time.Now()
	updates := map[string]interface{}{"last_contact_at": now}

	if in.Phone != nil && *in.Phone != "" && existing.Phone == nil {
		updates["phone"] = *in.Phone
		existing.Phone = in.Phone
	}
	if in.Email != nil && *in.Email != "" && existing.Email == nil {
		updates["email"] = *in.Email
		existing.Email = in.Email
	}
	if in.ChannelUserID != nil && *in.ChannelUserID != "" && existing.ChannelUserID == nil {
		updates["channel_user_id"] = *in.ChannelUserID
		existing.ChannelUserID = in.ChannelUserID
	}
	if in.Name != "" {
		updates["name"] = in.Name
		existing.Name = in.Name
	}
	if in.Location != "" {
		updates["location"] = in.Location
		existing.Location = in.Location
	}
	if in.Timezone != "" {
		updates["timezone"] = in.Timezone
		existing.Timezone = in.Timezone
	}
	if in.Language != "" {
		updates["language"] = in.Language
		existing.Language = in.Language
	}
	if in.Tier != "" {
		updates["tier"] = in.Tier
		existing.Tier = in.Tier
	}

	if err := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	existing.LastContactAt = &now
	return existing, nil
}

// GetCustomer fetches one customer by ID.
func (s *Store) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.WithContext(ctx).First(&customer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
