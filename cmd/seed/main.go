// seed inserts a verified demo school and its SUPER_ADMIN into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/school-auth/internal/password"
)

const (
	seedSchool   = "Demo International School"
	seedEmail    = "admin@demo.school.local"
	seedPassword = "ChangeMe123!"
)

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	tenants := postgres.NewTenantRepository(pool)
	accounts := postgres.NewAccountRepository(pool)

	exists, err := accounts.ExistsByEmail(ctx, seedEmail)
	if err != nil {
		log.Fatalf("check seed account: %v", err)
	}
	if exists {
		fmt.Println("Seed account already exists, nothing to do.")
		printUsage()
		return
	}

	digest, err := password.NewHasher(password.DefaultCost).Hash(seedPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	tenant, err := tenants.Create(ctx, &domain.Tenant{
		Name:           seedSchool,
		Type:           domain.SchoolInternationalSHS,
		Curricula:      []domain.Curriculum{domain.CurriculumIGCSE, domain.CurriculumIB},
		AdminEmail:     seedEmail,
		DigitalAddress: "GA-000-0001",
		Region:         "Greater Accra",
		City:           "Accra",
		Status:         domain.TenantVerified,
	})
	if err != nil {
		log.Fatalf("create tenant: %v", err)
	}

	account, err := accounts.Create(ctx, &domain.Account{
		TenantID:     tenant.ID,
		FirstName:    "Demo",
		LastName:     "Admin",
		Email:        seedEmail,
		Phone:        "+233200000000",
		PasswordHash: digest,
		Role:         domain.RoleSuperAdmin,
		Active:       true,
	})
	if err != nil {
		_ = tenants.Delete(ctx, tenant.ID)
		log.Fatalf("create account: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  School:     %s\n", tenant.Name)
	fmt.Printf("  School ID:  %s\n", tenant.ID)
	fmt.Printf("  Admin ID:   %s\n", account.ID)
	printUsage()
}

func printUsage() {
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 — log in as the seeded admin:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/auth/login \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"email\":\"%s\",\"password\":\"%s\"}'\n", seedEmail, seedPassword)
	fmt.Println("    # → {\"access_token\":\"eyJ...\",\"user\":{...}}")
	fmt.Println()
	fmt.Println("  Step 2 — call an authenticated route:")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Println("    curl -s http://localhost:8080/auth/me -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Step 3 — change the password; the old token stops working:")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/auth/change-password \\")
	fmt.Println("      -H \"Authorization: Bearer $JWT\" -H 'Content-Type: application/json' \\")
	fmt.Printf("      -d '{\"currentPassword\":\"%s\",\"newPassword\":\"N3w-password!\"}'\n", seedPassword)
	fmt.Println("    curl -s http://localhost:8080/auth/me -H \"Authorization: Bearer $JWT\"   # → 401")
}
