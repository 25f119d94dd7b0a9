package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	HTTPPort  string
	HTTPSPort string
	Domain    string
	HTTPOnly  bool
	// PublicURL is the base every meeting join link is built from.
	PublicURL string

	DatabasePath string

	LogLevel string
	LogFile  string

	TURNEnabled bool
	TURNPort    int
	TURNRealm   string

	JWTSecret string
	VAPIDKeys *VAPIDKeys

	// Invite feature switches and the external services behind them.
	// Empty URLs mean the feature is served locally.
	DirectorySearchEnabled bool
	DirectorySearchURL     string
	DirectorySearchToken   string
	DirectoryInviteEnabled bool
	InviteServiceURL       string
	InviteServiceToken     string
	DialOutEnabled         bool
	DialOutCheckURL        string
	QueryTypes             []string
}

type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Load builds the configuration from the environment, with generated
// secrets persisted next to the executable so restarts keep them.
func Load(httpOnly bool) *Config {
	cfg := &Config{
		HTTPPort:  getEnv("HTTP_PORT", "8080"),
		HTTPSPort: getEnv("HTTPS_PORT", "8443"),
		HTTPOnly:  httpOnly,

		DatabasePath: getEnv("DB_PATH", "gomeet.db"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		TURNEnabled: getEnvBool("TURN_ENABLED", true),
		TURNPort:    getEnvInt("TURN_PORT", 3478),
		TURNRealm:   getEnv("TURN_REALM", "gomeet"),

		DirectorySearchEnabled: getEnvBool("DIRECTORY_SEARCH_ENABLED", true),
		DirectorySearchURL:     getEnv("DIRECTORY_SEARCH_URL", ""),
		DirectorySearchToken:   getEnv("DIRECTORY_SEARCH_TOKEN", ""),
		DirectoryInviteEnabled: getEnvBool("DIRECTORY_INVITE_ENABLED", true),
		InviteServiceURL:       getEnv("INVITE_SERVICE_URL", ""),
		InviteServiceToken:     getEnv("INVITE_SERVICE_TOKEN", ""),
		DialOutEnabled:         getEnvBool("DIALOUT_ENABLED", false),
		DialOutCheckURL:        getEnv("DIALOUT_CHECK_URL", ""),
		QueryTypes:             splitQueryTypes(getEnv("INVITE_QUERY_TYPES", "user,room")),
	}

	cfg.Domain = loadDomain()
	cfg.JWTSecret = loadOrGenerateJWTSecret()
	cfg.VAPIDKeys = loadVAPIDKeys()
	cfg.PublicURL = resolvePublicURL(cfg)

	return cfg
}

func resolvePublicURL(cfg *Config) string {
	if value := os.Getenv("PUBLIC_URL"); value != "" {
		return strings.TrimRight(value, "/")
	}
	if cfg.HTTPOnly {
		return "http://" + cfg.Domain + ":" + cfg.HTTPPort
	}
	if cfg.HTTPSPort == "443" {
		return "https://" + cfg.Domain
	}
	return "https://" + cfg.Domain + ":" + cfg.HTTPSPort
}

func splitQueryTypes(raw string) []string {
	parts := strings.Split(raw, ",")
	types := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, part)
		}
	}
	return types
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.URLEncoding.EncodeToString(bytes)
}

func loadOrGenerateJWTSecret() string {
	// Try environment variable first (highest priority)
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}

	// Try to load from keys directory
	keysDir := getKeysDirectory()
	secretFile := filepath.Join(keysDir, "jwt-secret.key")

	if secretData, err := os.ReadFile(secretFile); err == nil {
		secret := strings.TrimSpace(string(secretData))
		if secret != "" {
			fmt.Printf("JWT secret loaded from: %s\n", secretFile)
			return secret
		}
	}

	// Generate new secret
	secret := generateRandomSecret()

	// Save secret to file
	if err := os.MkdirAll(keysDir, 0700); err == nil {
		if err := os.WriteFile(secretFile, []byte(secret), 0600); err == nil {
			fmt.Printf("JWT secret saved to: %s\n", secretFile)
		} else {
			fmt.Printf("Warning: Failed to save JWT secret to disk: %v\n", err)
			fmt.Println("Secret will be regenerated on next restart unless set via JWT_SECRET environment variable")
		}
	}

	return secret
}

func loadVAPIDKeys() *VAPIDKeys {
	// Try to load from environment first (highest priority)
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")

	if publicKey != "" && privateKey != "" {
		return &VAPIDKeys{
			PublicKey:  publicKey,
			PrivateKey: privateKey,
			Subject:    getEnv("VAPID_SUBJECT", "mailto:admin@gomeet.app"),
		}
	}

	// Try to load from keys directory
	keysDir := getKeysDirectory()
	publicKeyFile := filepath.Join(keysDir, "vapid-public.key")
	privateKeyFile := filepath.Join(keysDir, "vapid-private.key")
	subjectFile := filepath.Join(keysDir, "vapid-subject.key")

	if publicKeyData, err := os.ReadFile(publicKeyFile); err == nil {
		if privateKeyData, err := os.ReadFile(privateKeyFile); err == nil {
			publicKey = strings.TrimSpace(string(publicKeyData))
			privateKey = strings.TrimSpace(string(privateKeyData))

			// The webpush library expects the raw 32-byte private key,
			// base64 URL-encoded. Anything else gets regenerated.
			if decoded, err := base64.RawURLEncoding.DecodeString(privateKey); err == nil && len(decoded) == 32 {
				subject := getEnv("VAPID_SUBJECT", "mailto:admin@gomeet.app")
				if subjectData, err := os.ReadFile(subjectFile); err == nil {
					subject = strings.TrimSpace(string(subjectData))
				}
				return &VAPIDKeys{
					PublicKey:  publicKey,
					PrivateKey: privateKey,
					Subject:    subject,
				}
			}

			fmt.Println("WARNING: Stored VAPID private key is not a raw 32-byte key. Regenerating...")
			os.Remove(publicKeyFile)
			os.Remove(privateKeyFile)
			os.Remove(subjectFile)
		}
	}

	publicKey, privateKey = GenerateVAPIDKeys()
	subject := getEnv("VAPID_SUBJECT", "mailto:admin@gomeet.app")

	if err := saveVAPIDKeys(keysDir, publicKey, privateKey, subject); err != nil {
		fmt.Printf("Warning: Failed to save VAPID keys to disk: %v\n", err)
		fmt.Println("Keys will be regenerated on next restart unless set via environment variables")
	}

	return &VAPIDKeys{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subject:    subject,
	}
}

// GenerateVAPIDKeys mints a fresh P-256 key pair in the encoding Web Push
// expects: the public key as an uncompressed 65-byte point, the private key
// as its raw 32 bytes, both base64 URL-encoded without padding.
func GenerateVAPIDKeys() (publicKey, privateKey string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("Failed to generate VAPID keys: " + err.Error())
	}

	publicKeyBytes := make([]byte, 65)
	publicKeyBytes[0] = 0x04 // Uncompressed point prefix
	key.PublicKey.X.FillBytes(publicKeyBytes[1:33])
	key.PublicKey.Y.FillBytes(publicKeyBytes[33:65])

	privateKeyBytes := make([]byte, 32)
	key.D.FillBytes(privateKeyBytes)

	return base64.RawURLEncoding.EncodeToString(publicKeyBytes),
		base64.RawURLEncoding.EncodeToString(privateKeyBytes)
}

func getKeysDirectory() string {
	// Get directory where the executable is located
	execPath, err := os.Executable()
	if err != nil {
		// Fallback to current directory
		return "keys"
	}
	execDir := filepath.Dir(execPath)
	return filepath.Join(execDir, "keys")
}

func saveVAPIDKeys(keysDir, publicKey, privateKey, subject string) error {
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}

	publicKeyFile := filepath.Join(keysDir, "vapid-public.key")
	if err := os.WriteFile(publicKeyFile, []byte(publicKey), 0600); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}

	privateKeyFile := filepath.Join(keysDir, "vapid-private.key")
	if err := os.WriteFile(privateKeyFile, []byte(privateKey), 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	subjectFile := filepath.Join(keysDir, "vapid-subject.key")
	if err := os.WriteFile(subjectFile, []byte(subject), 0600); err != nil {
		return fmt.Errorf("failed to save subject: %w", err)
	}

	fmt.Printf("VAPID keys saved to: %s\n", keysDir)
	return nil
}

func getCertsDirectory() string {
	// Get directory where the executable is located
	execPath, err := os.Executable()
	if err != nil {
		// Fallback to current directory
		return "certs"
	}
	execDir := filepath.Dir(execPath)
	return filepath.Join(execDir, "certs")
}

func loadDomain() string {
	// Try environment variable first
	if domain := os.Getenv("DOMAIN"); domain != "" {
		return domain
	}

	// Try to load from certs directory
	certsDir := getCertsDirectory()
	domainFile := filepath.Join(certsDir, "domain.txt")
	if domainData, err := os.ReadFile(domainFile); err == nil {
		domain := strings.TrimSpace(string(domainData))
		if domain != "" {
			return domain
		}
	}

	return "localhost"
}
