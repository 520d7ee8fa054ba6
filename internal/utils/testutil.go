package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	testEnvOnce  sync.Once
	testMongoURI string
)

// loadTestEnv reads MONGO_URI from the project .env (two levels up) or the process environment.
func loadTestEnv() {
	testEnvOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
		if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
			_ = godotenv.Load()
		}
		testMongoURI = os.Getenv("MONGO_URI")
	})
}

// SetupTestDB connects to the test MongoDB and drops the given collections for a clean state.
// Tests are skipped when MONGO_URI is not configured.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	loadTestEnv()
	if testMongoURI == "" {
		t.Skip("MONGO_URI not set, skipping MongoDB integration test")
	}

	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(testMongoURI))
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(dbName)
	for _, collection := range collections {
		_ = db.Collection(collection).Drop(context.Background())
	}
	return db
}
