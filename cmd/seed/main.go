package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"partyquiz/internal/config"
	"partyquiz/internal/model"
	"partyquiz/internal/repository"
)

func main() {
	file := flag.String("file", "", "JSON file with questions (defaults to the built-in bank)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	mongoURI := cfg.MongoURI
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	questions, err := loadQuestions(*file)
	if err != nil {
		log.Fatalf("Failed to load questions: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	repo := repository.NewQuestionRepo(client.Database(cfg.MongoDB))
	n, err := repo.InsertMany(ctx, questions)
	if err != nil {
		log.Fatalf("Failed to insert questions: %v", err)
	}

	categories, err := repo.Categories(ctx)
	if err != nil {
		log.Fatalf("Failed to list categories: %v", err)
	}
	log.Printf("Seeded %d questions into %s.questions, categories: %v", n, cfg.MongoDB, categories)
}

func loadQuestions(path string) ([]model.Question, error) {
	if path == "" {
		return repository.DefaultQuestions()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}
