package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// User is an account holder. LifetimeEarnings is the running cash ledger:
// it goes down when cost basis is acquired and up when basis is liquidated
// or cash is received in a trade.
type User struct {
	ID               int64           `json:"id"`
	Username         string          `json:"username"`
	Email            string          `json:"email"`
	PasswordHash     string          `json:"-"`
	LifetimeEarnings decimal.Decimal `json:"lifetime_earnings"`
	CreatedAt        time.Time       `json:"created_at"`
}

func CreateUser(db DBTX, username, email, passwordHash string) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`,
		username, email, passwordHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetUserByID(db DBTX, id int64) (*User, error) {
	return scanUser(db.QueryRow(
		`SELECT id, username, email, password_hash, lifetime_earnings, created_at FROM users WHERE id = ?`, id))
}

func GetUserByUsername(db DBTX, username string) (*User, error) {
	return scanUser(db.QueryRow(
		`SELECT id, username, email, password_hash, lifetime_earnings, created_at FROM users WHERE username = ?`, username))
}

func GetUserByEmail(db DBTX, email string) (*User, error) {
	return scanUser(db.QueryRow(
		`SELECT id, username, email, password_hash, lifetime_earnings, created_at FROM users WHERE email = ?`, email))
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var earnings string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &earnings, &u.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	u.LifetimeEarnings, err = decimal.NewFromString(earnings)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AdjustLifetimeEarnings applies a signed delta to the user's cash ledger.
func AdjustLifetimeEarnings(db DBTX, userID int64, delta decimal.Decimal) error {
	user, err := GetUserByID(db, userID)
	if err != nil {
		return err
	}
	newValue := user.LifetimeEarnings.Add(delta)
	_, err = db.Exec(
		`UPDATE users SET lifetime_earnings = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newValue.String(), userID,
	)
	return err
}
