package device

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxAddressLength  = 253
	maxUsernameLength = 128
	maxSecretLength   = 256
)

// validateNewDevice checks that every required field is present.
// Name, address and username are trimmed. The secret is stored verbatim but
// must not be blank.
func validateNewDevice(in NewDevice) (NewDevice, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	in.Username = strings.TrimSpace(in.Username)

	var missing []string
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.Address == "" {
		missing = append(missing, "ip")
	}
	if in.Username == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(in.Secret) == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return in, fmt.Errorf("%w: required fields missing: %s", ErrValidation, strings.Join(missing, ", "))
	}

	if err := validateName(in.Name); err != nil {
		return in, err
	}
	if err := ValidateAddress(in.Address); err != nil {
		return in, err
	}
	if err := validateCredentials(in.Username, in.Secret); err != nil {
		return in, err
	}
	return in, nil
}

func validateName(name string) error {
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}
	return nil
}

func validateCredentials(username, secret string) error {
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username exceeds %d characters", ErrValidation, maxUsernameLength)
	}
	if len(secret) > maxSecretLength {
		return fmt.Errorf("%w: password exceeds %d characters", ErrValidation, maxSecretLength)
	}
	return nil
}

// ValidateAddress accepts a hostname, an IPv4/IPv6 literal, or either with
// a port. Schemes and paths are rejected because the client builds the URL.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: ip is required", ErrValidation)
	}
	if len(addr) > maxAddressLength {
		return fmt.Errorf("%w: ip exceeds %d characters", ErrValidation, maxAddressLength)
	}
	if strings.ContainsAny(addr, "/?#@ \t") {
		return fmt.Errorf("%w: ip %q must be a host or host:port, not a URL", ErrValidation, addr)
	}

	host := addr
	if h, port, err := net.SplitHostPort(addr); err == nil {
		n, convErr := strconv.Atoi(port)
		if convErr != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: ip %q has an invalid port", ErrValidation, addr)
		}
		host = h
	}
	if host == "" {
		return fmt.Errorf("%w: ip %q has no host", ErrValidation, addr)
	}
	return nil
}

// GenerateID returns a new identifier for a device or group.
//
// UUIDv7 combines a millisecond timestamp with 74 random bits, so IDs sort
// roughly by creation time but cannot be guessed from one another.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4.
		return uuid.New().String()
	}
	return id.String()
}
