package main

import (
	"context"
	"log"

	"academy/internal/accounts"
	"academy/internal/auth"
	"academy/internal/catalog"
	"academy/internal/config"
	"academy/internal/store"
)

// Seed creates the admin account, a demo student, and a starter catalog.
// Safe to run repeatedly; existing rows are left alone.
func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	users := accounts.NewRepository(db.Client)
	cat := catalog.NewRepository(db.Client)

	seedUser(ctx, users, cfg.SeedAdminUser, cfg.SeedAdminPass, accounts.RoleAdmin)
	seedUser(ctx, users, "student", "student123", accounts.RoleStudent)
	seedCatalog(ctx, cat)

	log.Println("seed complete")
}

func seedUser(ctx context.Context, users *accounts.Repository, username, password, role string) {
	existing, err := users.ByUsername(ctx, username)
	if err != nil {
		log.Fatalf("lookup %s failed: %v", username, err)
	}
	if existing != nil {
		log.Printf("user %s already exists, skipping", username)
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password failed: %v", err)
	}
	if _, err := users.Insert(ctx, accounts.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}); err != nil {
		log.Fatalf("create %s failed: %v", username, err)
	}
	log.Printf("user %s created (role %s)", username, role)
}

func seedCatalog(ctx context.Context, cat *catalog.Repository) {
	teachers, err := cat.ListTeachers(ctx)
	if err != nil {
		log.Fatalf("list teachers failed: %v", err)
	}
	if len(teachers) > 0 {
		log.Printf("catalog already seeded (%d teachers), skipping", len(teachers))
		return
	}

	profiles := []catalog.Teacher{
		{
			Name:      "Dilshod Karimov",
			Bio:       "Full-stack engineer with 10+ years of experience building scalable SaaS products across fintech and education.",
			Specialty: "Full-Stack Development",
			ImageURL:  ptr("https://images.unsplash.com/photo-1544723795-3fb6469f5b39?auto=format&fit=crop&w=400&q=80"),
		},
		{
			Name:      "Aziza Rakhmonova",
			Bio:       "Data scientist focused on turning raw data into actionable insights using machine learning and visualization tools.",
			Specialty: "Data Science & AI",
			ImageURL:  ptr("https://images.unsplash.com/photo-1524504388940-b1c1722653e1?auto=format&fit=crop&w=400&q=80"),
		},
		{
			Name:      "Timur Valiev",
			Bio:       "Cloud solutions architect guiding teams to deploy resilient, secure infrastructure across AWS and Azure.",
			Specialty: "Cloud Engineering",
			ImageURL:  ptr("https://images.unsplash.com/photo-1535713875002-d1d0cf377fde?auto=format&fit=crop&w=400&q=80"),
		},
	}

	created := make([]catalog.Teacher, 0, len(profiles))
	for _, t := range profiles {
		saved, err := cat.InsertTeacher(ctx, t)
		if err != nil {
			log.Fatalf("create teacher %s failed: %v", t.Name, err)
		}
		created = append(created, saved)
	}
	log.Printf("created %d teachers", len(created))

	courses := []catalog.Course{
		{
			Title:       "Full-Stack Web Development Bootcamp",
			Description: "Master HTML, CSS, JavaScript, and Python by building real-world applications with modern best practices.",
			Duration:    "16 weeks",
			Price:       1299.00,
			ImageURL:    ptr("https://images.unsplash.com/photo-1519389950473-47ba0277781c?auto=format&fit=crop&w=800&q=80"),
			TeacherID:   created[0].ID,
		},
		{
			Title:       "Data Science & Machine Learning",
			Description: "Learn data wrangling, visualization, and predictive modeling using Python, pandas, and scikit-learn.",
			Duration:    "14 weeks",
			Price:       1499.00,
			ImageURL:    ptr("https://images.unsplash.com/photo-1545239351-1141bd82e8a6?auto=format&fit=crop&w=800&q=80"),
			TeacherID:   created[1].ID,
		},
		{
			Title:       "Cloud Infrastructure Architect",
			Description: "Design, deploy, and maintain cloud-native infrastructure leveraging Infrastructure as Code and DevOps workflows.",
			Duration:    "12 weeks",
			Price:       1599.00,
			ImageURL:    ptr("https://images.unsplash.com/photo-1517430816045-df4b7de11d1d?auto=format&fit=crop&w=800&q=80"),
			TeacherID:   created[2].ID,
		},
	}
	for _, c := range courses {
		if _, err := cat.InsertCourse(ctx, c); err != nil {
			log.Fatalf("create course %s failed: %v", c.Title, err)
		}
	}
	log.Printf("created %d courses", len(courses))
}

func ptr(s string) *string {
	return &s
}
