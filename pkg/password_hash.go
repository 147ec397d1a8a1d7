package pkg

import "golang.org/x/crypto/bcrypt"

// bcrypt cost used for client secrets
const passwordHashCost = 12

const clientSecretLength = 32

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	return BytesToString(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewClientSecret returns a random client secret and its bcrypt hash.
func NewClientSecret() (secret, hash string, err error) {
	secret, err = GenerateRandomString(clientSecretLength)
	if err != nil {
		return "", "", err
	}
	hash, err = HashPassword(secret)
	if err != nil {
		return "", "", err
	}
	return secret, hash, nil
}
