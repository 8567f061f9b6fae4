package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/database"
	"github.com/examly/examly-backend/internal/logger"
	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/repository"
)

// Seeds one course with a mixed question bank, a published exam open for the
// next two hours, one professor and three enrolled students. Meant for local
// demos against a fresh database.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	courseRepo := repository.NewCourseRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	examRepo := repository.NewExamRepository(pool)

	fmt.Println("=== Seeding demo data ===")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	professor := &model.User{
		Name:         "Ada Morales",
		Email:        "professor@examly.dev",
		PasswordHash: string(hash),
		Role:         model.RoleProfessor,
	}
	if err := userRepo.Create(ctx, professor); err != nil {
		log.Fatal().Err(err).Msg("Failed to create professor")
	}
	fmt.Printf("Professor: %s / password\n", professor.Email)

	course := &model.Course{
		Title:       "Computer Networks",
		CourseCode:  "NET-301",
		Description: "Transport protocols, routing, and the web stack.",
		CreatedBy:   &professor.ID,
	}
	if err := courseRepo.Create(ctx, course); err != nil {
		log.Fatal().Err(err).Msg("Failed to create course")
	}

	students := make([]*model.User, 0, 3)
	for i := 1; i <= 3; i++ {
		student := &model.User{
			Name:         fmt.Sprintf("Demo Student %d", i),
			Email:        fmt.Sprintf("student%d@examly.dev", i),
			PasswordHash: string(hash),
			Role:         model.RoleStudent,
		}
		if err := userRepo.Create(ctx, student); err != nil {
			log.Fatal().Err(err).Msg("Failed to create student")
		}
		if err := courseRepo.Enroll(ctx, course.ID, student.ID); err != nil {
			log.Fatal().Err(err).Msg("Failed to enroll student")
		}
		students = append(students, student)
	}
	fmt.Printf("Students: student1..student%d@examly.dev / password\n", len(students))

	questions := demoQuestions(course.ID, professor.ID)
	for i := range questions {
		if err := questionRepo.Create(ctx, &questions[i]); err != nil {
			log.Fatal().Err(err).Msg("Failed to create question")
		}
	}
	fmt.Printf("Question bank: %d questions\n", len(questions))

	exam := &model.Exam{
		Title:           "Networks Midterm",
		Description:     "Covers transport and application layers.",
		Date:            time.Now().Add(-5 * time.Minute),
		DurationMinutes: 120,
		CourseID:        &course.ID,
		SelectionMode:   model.SelectionModeRandom,
		RandomConfig: &model.RandomConfig{
			MCCount:      2,
			TFCount:      2,
			EssayCount:   1,
			ShuffleOrder: true,
		},
		QuestionCount: 5,
		CreatedBy:     &professor.ID,
	}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	if err := examRepo.MarkPublished(ctx, exam.ID); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish exam")
	}
	fmt.Printf("Published exam %q (%s), open for the next 2 hours\n", exam.Title, exam.ID)

	fmt.Println("Done.")
}

func demoQuestions(courseID, creatorID uuid.UUID) []model.Question {
	mc := func(content string, options []string, correct string, points float64) model.Question {
		key, _ := json.Marshal(correct)
		return model.Question{
			CourseID:      courseID,
			Type:          model.QuestionTypeMultipleChoice,
			Content:       content,
			Options:       options,
			CorrectAnswer: key,
			Points:        points,
			CreatedBy:     &creatorID,
		}
	}
	tf := func(content string, correct bool, points float64) model.Question {
		key, _ := json.Marshal(correct)
		return model.Question{
			CourseID:      courseID,
			Type:          model.QuestionTypeTrueFalse,
			Content:       content,
			CorrectAnswer: key,
			Points:        points,
			CreatedBy:     &creatorID,
		}
	}

	return []model.Question{
		mc("Which HTTP method is idempotent?", []string{"POST", "PUT", "PATCH"}, "PUT", 2),
		mc("Default HTTPS port?", []string{"80", "443", "8080"}, "443", 1),
		mc("Which protocol resolves hostnames?", []string{"DHCP", "DNS", "ARP"}, "DNS", 1),
		tf("TCP guarantees in-order delivery.", true, 1),
		tf("UDP retransmits lost datagrams.", false, 1),
		tf("TLS runs below TCP in the stack.", false, 1),
		{
			CourseID:  courseID,
			Type:      model.QuestionTypeEssay,
			Content:   "Explain how TCP congestion control reacts to packet loss.",
			Points:    5,
			CreatedBy: &creatorID,
		},
		{
			CourseID:  courseID,
			Type:      model.QuestionTypeImageUpload,
			Content:   "Draw the TCP three-way handshake and upload a photo of it.",
			Points:    3,
			CreatedBy: &creatorID,
		},
	}
}
