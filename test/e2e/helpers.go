//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindmesh-ai/mindmesh/internal/api/handlers"
	"github.com/mindmesh-ai/mindmesh/internal/domain"
	"github.com/mindmesh-ai/mindmesh/internal/ingest"
	"github.com/mindmesh-ai/mindmesh/internal/jobs"
	"github.com/mindmesh-ai/mindmesh/internal/llm"
	"github.com/mindmesh-ai/mindmesh/internal/repository"
	"github.com/mindmesh-ai/mindmesh/internal/server"
	"github.com/mindmesh-ai/mindmesh/internal/service"
	"github.com/mindmesh-ai/mindmesh/internal/storage"
	"github.com/mindmesh-ai/mindmesh/internal/testutil"
)

const testOwner = "owner-e2e"

// TestEnv holds the containers and the running server for one test.
type TestEnv struct {
	T             *testing.T
	Ctx           context.Context
	PostgresC     *testutil.PostgresContainer
	RustFSC       *testutil.RustFSContainer
	Pool          *pgxpool.Pool
	Archive       *storage.Archive
	AssistantRepo *repository.AssistantRepository
	Janitor       *jobs.Janitor
	ServerURL     string
	ServerCloser  func()
	HTTPClient    *http.Client
}

// SetupTestEnv starts Postgres and RustFS containers, runs migrations, and
// serves the full API on a free port. The LLM connector and the embedder are
// deterministic in-process fakes; everything else is the real stack.
func SetupTestEnv(t *testing.T) *TestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	archive, err := storage.NewArchive(ctx, storage.ArchiveConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "mindmesh-sources",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &TestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		Archive:    archive,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.startServer(port)
	return env
}

// Cleanup releases all resources.
func (e *TestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

func (e *TestEnv) startServer(port int) {
	collectionRepo := repository.NewCollectionRepository(e.Pool)
	fileRepo := repository.NewFileRepository(e.Pool)
	chunkRepo := repository.NewChunkRepository(e.Pool)
	assistantRepo := repository.NewAssistantRepository(e.Pool)
	completionLogRepo := repository.NewCompletionLogRepository(e.Pool)
	txRunner := repository.NewTxRunner(e.Pool)

	e.AssistantRepo = assistantRepo
	e.Janitor = jobs.NewJanitor(chunkRepo, completionLogRepo, 90)

	emb := &wordEmbedder{}
	registry := ingest.NewRegistry(
		ingest.NewFilePlugin(e.T.TempDir()),
		ingest.NewWebPlugin(e.HTTPClient),
		ingest.NewVideoPlugin(e.HTTPClient),
	)

	ingestionSvc := service.NewIngestionService(collectionRepo, fileRepo, chunkRepo, txRunner, emb, registry).
		WithArchive(e.Archive)
	collectionSvc := service.NewCollectionService(collectionRepo, chunkRepo, emb.Model())
	retrievalSvc := service.NewRetrievalService(collectionRepo, chunkRepo, emb)
	auditSvc := service.NewAuditService(completionLogRepo)
	completionSvc := service.NewCompletionService(
		assistantRepo,
		retrievalSvc,
		llm.NewRegistry(&scriptedConnector{tokens: []string{"Use ", "a ", "gravity ", "assist."}}),
		auditSvc,
	)

	router := server.NewRouter(server.RouterConfig{
		CollectionHandler: handlers.NewCollectionHandler(collectionSvc),
		IngestHandler:     handlers.NewIngestHandler(ingestionSvc),
		QueryHandler:      handlers.NewQueryHandler(retrievalSvc),
		CompletionHandler: handlers.NewCompletionHandler(completionSvc, assistantRepo),
		PluginsHandler:    handlers.NewPluginsHandler(registry),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, e.ServerURL, 10*time.Second)

	e.ServerCloser = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// APIResponse is one decoded API reply plus its HTTP status.
type APIResponse struct {
	Status int
	Data   json.RawMessage
	Error  string
	Code   string
}

// DecodeData unmarshals the data envelope into out.
func (r *APIResponse) DecodeData(t *testing.T, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, out); err != nil {
		t.Fatalf("failed to decode response data: %v\n%s", err, r.Data)
	}
}

// Get performs a GET request with the given owner header.
func (e *TestEnv) Get(path, owner string) *APIResponse {
	return e.doRequest("GET", path, nil, owner)
}

// Post performs a POST request with a JSON body.
func (e *TestEnv) Post(path string, body interface{}, owner string) *APIResponse {
	return e.doRequest("POST", path, body, owner)
}

// Put performs a PUT request with a JSON body.
func (e *TestEnv) Put(path string, body interface{}, owner string) *APIResponse {
	return e.doRequest("PUT", path, body, owner)
}

// Delete performs a DELETE request.
func (e *TestEnv) Delete(path, owner string) *APIResponse {
	return e.doRequest("DELETE", path, nil, owner)
}

func (e *TestEnv) doRequest(method, path string, body interface{}, owner string) *APIResponse {
	e.T.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	if owner != "" {
		req.Header.Set(handlers.OwnerHeader, owner)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return e.send(req)
}

// UploadFiles posts a multipart batch to a collection's files endpoint.
// fields holds form values like chunk_size; files maps filename to content.
func (e *TestEnv) UploadFiles(collectionID, owner string, fields map[string]string, files map[string][]byte) *APIResponse {
	e.T.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			e.T.Fatalf("failed to write form field: %v", err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			e.T.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			e.T.Fatalf("failed to write form file: %v", err)
		}
	}
	mw.Close()

	req, err := http.NewRequest("POST", e.ServerURL+"/collections/"+collectionID+"/files", &buf)
	if err != nil {
		e.T.Fatalf("failed to build upload request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if owner != "" {
		req.Header.Set(handlers.OwnerHeader, owner)
	}

	return e.send(req)
}

func (e *TestEnv) send(req *http.Request) *APIResponse {
	e.T.Helper()

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out := &APIResponse{Status: resp.StatusCode}
	if resp.StatusCode == http.StatusNoContent {
		return out
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response body: %v", err)
	}
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
		Code  string          `json:"code"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		e.T.Fatalf("failed to decode response: %v\n%s", err, raw)
	}
	out.Data = envelope.Data
	out.Error = envelope.Error
	out.Code = envelope.Code
	return out
}

// CreateCollection creates a collection and returns its ID.
func (e *TestEnv) CreateCollection(name string) string {
	e.T.Helper()

	resp := e.Post("/collections", map[string]string{"name": name}, testOwner)
	if resp.Status != http.StatusCreated {
		e.T.Fatalf("failed to create collection: status %d, error %q", resp.Status, resp.Error)
	}
	var created struct {
		ID string `json:"id"`
	}
	resp.DecodeData(e.T, &created)
	return created.ID
}

// CreateAssistant seeds an assistant record directly; assistant lifecycle
// belongs to the surrounding platform and has no write endpoint here.
func (e *TestEnv) CreateAssistant(a *domain.Assistant) {
	e.T.Helper()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := e.AssistantRepo.Create(e.Ctx, a); err != nil {
		e.T.Fatalf("failed to create assistant: %v", err)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// wordEmbedder maps text to a normalized bag-of-words vector. Texts that
// share words get a positive cosine similarity, so retrieval ranking behaves
// like the real thing without network calls.
type wordEmbedder struct{}

func (*wordEmbedder) Model() string { return "text-embedding-ada-002" }

func (*wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 1536)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,!?;:\"'()")
			if w == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(w))
			vec[h.Sum32()%1536]++
		}
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		if sum == 0 {
			vec[0] = 1
		} else {
			norm := float32(math.Sqrt(sum))
			for j := range vec {
				vec[j] /= norm
			}
		}
		out[i] = vec
	}
	return out, nil
}

// scriptedConnector emits a fixed token sequence for any request.
type scriptedConnector struct {
	tokens []string
}

func (c *scriptedConnector) Provider() domain.Provider { return domain.ProviderOpenAI }

func (c *scriptedConnector) Complete(ctx context.Context, _ llm.Request) (*llm.Stream, error) {
	s := llm.NewStream()
	go func() {
		for _, tok := range c.tokens {
			if !s.Send(ctx, tok) {
				s.Close(ctx.Err())
				return
			}
		}
		s.Close(nil)
	}()
	return s, nil
}
