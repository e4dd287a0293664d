package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"ally-backend/classifier"
	"ally-backend/embedding"
	"ally-backend/handlers"
	"ally-backend/service"
	"ally-backend/vectorstore"
)

func main() {
	// Load .env from the current directory, then the project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	embedder, err := embedding.NewGeminiFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize embeddings: %v", err)
	}

	index, err := vectorstore.NewIndexFromEnv(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize vector index: %v", err)
	}
	log.Println("Vector index initialized")

	gate := initClassifierGate()

	synthesizer, err := service.NewGeminiSynthesizerFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize synthesizer: %v", err)
	}

	assistant := service.NewAssistantService(embedder, index, gate, synthesizer)

	queryHandler := handlers.NewQueryHandler(assistant, index)

	r := gin.Default()

	r.GET("/", queryHandler.Root)
	r.GET("/health", queryHandler.Health)
	r.POST("/search", queryHandler.Search)

	api := r.Group("/api")
	{
		api.POST("/validate", queryHandler.Validate)
		api.POST("/query", queryHandler.Query)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// initClassifierGate wires the configured query classifier. The server
// still starts without one: the gate fails open and every query passes
// at reduced confidence.
func initClassifierGate() *classifier.Gate {
	switch os.Getenv("CLASSIFIER_STRATEGY") {
	case "zero_shot":
		zs, err := classifier.NewZeroShotFromEnv()
		if err != nil {
			log.Printf("Warning: zero-shot classifier unavailable: %v", err)
			return classifier.NewGate(nil)
		}
		log.Println("Zero-shot classifier initialized")
		return classifier.NewGate(zs)
	case "none":
		return classifier.NewGate(nil)
	default:
		client, err := initGemini()
		if err != nil {
			log.Printf("Warning: Gemini classifier unavailable: %v", err)
			return classifier.NewGate(nil)
		}
		log.Println("Gemini classifier initialized")
		return classifier.NewGate(classifier.NewGeminiClassifier(client))
	}
}

func initGemini() (*genai.Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	log.Println("Gemini client initialized")
	return client, nil
}
