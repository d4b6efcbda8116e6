package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expensesBucketName = "expenses"
	groupsBucketName   = "groups"
	friendsBucketName  = "friends"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// Local implements Ledger in a BoltDB file. It stands in for Splitwise
// during development and offline use.
type Local struct {
	db         *bbolt.DB
	timeSource TimeSource
}

// NewLocal opens or creates a local ledger at path
func NewLocal(path string) (*Local, error) {
	return NewLocalWithDeps(path, systemTime{})
}

// NewLocalWithDeps opens a local ledger with a custom time source for testing
func NewLocalWithDeps(path string, timeSrc TimeSource) (*Local, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expensesBucketName, groupsBucketName, friendsBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Local{db: db, timeSource: timeSrc}, nil
}

// itob encodes ids so keys sort in numeric order
func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// CreateExpense stores an expense. A group, if given, must exist.
func (l *Local) CreateExpense(ctx context.Context, input ExpenseInput) (*Expense, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var expense Expense
	err := l.db.Update(func(tx *bbolt.Tx) error {
		if input.GroupID != nil && tx.Bucket([]byte(groupsBucketName)).Get(itob(*input.GroupID)) == nil {
			return fmt.Errorf("group not found: %d", *input.GroupID)
		}

		bucket := tx.Bucket([]byte(expensesBucketName))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating expense id: %w", err)
		}

		expense = Expense{
			ID:          int64(seq),
			Description: input.Description,
			Amount:      input.Amount,
			Date:        l.timeSource.Now().UTC().Format(time.RFC3339),
			GroupID:     input.GroupID,
			Details:     Details(input.ReceiptData),
		}
		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put(itob(expense.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("creating expense: %w", err)
	}
	return &expense, nil
}

// Expenses returns the newest expenses first, optionally for one group
func (l *Local) Expenses(ctx context.Context, query ExpenseQuery) ([]Expense, error) {
	limit := query.limit()
	expenses := make([]Expense, 0)
	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(expensesBucketName)).Cursor()
		for k, v := c.Last(); k != nil && len(expenses) < limit; k, v = c.Prev() {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if query.GroupID != nil && (expense.GroupID == nil || *expense.GroupID != *query.GroupID) {
				continue
			}
			expenses = append(expenses, expense)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// AddGroup saves a group
func (l *Local) AddGroup(group Group) error {
	return l.put(groupsBucketName, group.ID, group)
}

// AddFriend saves a friend
func (l *Local) AddFriend(friend Friend) error {
	return l.put(friendsBucketName, friend.ID, friend)
}

// Seed lists the groups and friends a local ledger starts with
type Seed struct {
	Groups  []Group  `json:"groups"`
	Friends []Friend `json:"friends"`
}

// Import saves every group and friend of a JSON Seed read from r. Existing
// records with the same id are replaced.
func (l *Local) Import(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decoding seed: %w", err)
	}
	for _, group := range seed.Groups {
		if group.ID <= 0 {
			return fmt.Errorf("group %q has no id", group.Name)
		}
		if err := l.AddGroup(group); err != nil {
			return fmt.Errorf("saving group %d: %w", group.ID, err)
		}
	}
	for _, friend := range seed.Friends {
		if friend.ID <= 0 {
			return fmt.Errorf("friend %q has no id", friend.FirstName)
		}
		if err := l.AddFriend(friend); err != nil {
			return fmt.Errorf("saving friend %d: %w", friend.ID, err)
		}
	}
	return nil
}

// ImportFile is Import for a seed file on disk
func (l *Local) ImportFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening seed: %w", err)
	}
	defer f.Close()
	return l.Import(f)
}

// Groups returns all groups
func (l *Local) Groups(ctx context.Context) ([]Group, error) {
	groups := make([]Group, 0)
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(groupsBucketName)).ForEach(func(k, v []byte) error {
			var group Group
			if err := json.Unmarshal(v, &group); err != nil {
				return fmt.Errorf("unmarshaling group: %w", err)
			}
			if group.Members == nil {
				group.Members = []Member{}
			}
			groups = append(groups, group)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// Friends returns all friends
func (l *Local) Friends(ctx context.Context) ([]Friend, error) {
	friends := make([]Friend, 0)
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(friendsBucketName)).ForEach(func(k, v []byte) error {
			var friend Friend
			if err := json.Unmarshal(v, &friend); err != nil {
				return fmt.Errorf("unmarshaling friend: %w", err)
			}
			friends = append(friends, friend)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return friends, nil
}

func (l *Local) put(bucketName string, id int64, value any) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucketName, err)
		}
		return tx.Bucket([]byte(bucketName)).Put(itob(id), data)
	})
}

// Close closes the database connection
func (l *Local) Close() error {
	return l.db.Close()
}
