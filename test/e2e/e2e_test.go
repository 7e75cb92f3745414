//go:build e2e

package e2e

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

func TestE2E_CollectionLifecycle(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	var collectionID string

	t.Run("create requires owner header", func(t *testing.T) {
		resp := env.Post("/collections", map[string]string{"name": "no owner"}, "")
		if resp.Status != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Status)
		}
	})

	t.Run("create collection", func(t *testing.T) {
		resp := env.Post("/collections", map[string]string{
			"name":        "Flight Notes",
			"description": "Spacecraft trajectory notes",
		}, testOwner)
		if resp.Status != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", resp.Status, resp.Error)
		}

		var created struct {
			ID             string `json:"id"`
			OwnerID        string `json:"owner_id"`
			EmbeddingModel string `json:"embedding_model"`
			Visibility     string `json:"visibility"`
		}
		resp.DecodeData(t, &created)
		if created.OwnerID != testOwner {
			t.Errorf("expected owner %q, got %q", testOwner, created.OwnerID)
		}
		if created.EmbeddingModel != "text-embedding-ada-002" {
			t.Errorf("expected collection pinned to embedding model, got %q", created.EmbeddingModel)
		}
		if created.Visibility != "private" {
			t.Errorf("expected private default visibility, got %q", created.Visibility)
		}
		collectionID = created.ID
	})

	t.Run("get collection", func(t *testing.T) {
		resp := env.Get("/collections/"+collectionID, testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
	})

	t.Run("list collections for owner", func(t *testing.T) {
		resp := env.Get("/collections?limit=10", testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
		var page struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		resp.DecodeData(t, &page)
		if len(page.Items) != 1 || page.Items[0].ID != collectionID {
			t.Errorf("expected the created collection in the list, got %+v", page.Items)
		}
	})

	t.Run("update collection", func(t *testing.T) {
		resp := env.Put("/collections/"+collectionID, map[string]string{
			"name":       "Flight Notes v2",
			"visibility": "public",
		}, testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Error)
		}
		var updated struct {
			Name       string `json:"name"`
			Visibility string `json:"visibility"`
		}
		resp.DecodeData(t, &updated)
		if updated.Name != "Flight Notes v2" || updated.Visibility != "public" {
			t.Errorf("update not applied: %+v", updated)
		}
	})

	t.Run("stats on empty collection", func(t *testing.T) {
		resp := env.Get("/collections/"+collectionID+"/stats", testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
		var stats struct {
			ChunkCount int64 `json:"chunk_count"`
		}
		resp.DecodeData(t, &stats)
		if stats.ChunkCount != 0 {
			t.Errorf("expected 0 chunks, got %d", stats.ChunkCount)
		}
	})

	t.Run("delete collection", func(t *testing.T) {
		resp := env.Delete("/collections/"+collectionID, testOwner)
		if resp.Status != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.Status)
		}
		resp = env.Get("/collections/"+collectionID, testOwner)
		if resp.Status != http.StatusNotFound {
			t.Fatalf("expected 404 after delete, got %d", resp.Status)
		}
		if resp.Code != "NOT_FOUND" {
			t.Errorf("expected NOT_FOUND code, got %q", resp.Code)
		}
	})
}

func TestE2E_IngestAndQuery(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	collectionID := env.CreateCollection("Mission Library")

	mechanicsDoc := []byte("A gravity assist uses a planet's motion to change spacecraft velocity. " +
		"Mission planners chain gravity assist maneuvers to reach the outer planets cheaply.")
	bakingDoc := []byte("Sourdough starter needs regular feeding with flour and water. " +
		"A mature starter doubles within hours of feeding.")

	var mechanicsFileID, bakingFileID string

	t.Run("multipart upload", func(t *testing.T) {
		resp := env.UploadFiles(collectionID, testOwner,
			map[string]string{"chunk_size": "4000", "strategy": "fixed"},
			map[string][]byte{"mechanics.txt": mechanicsDoc, "baking.txt": bakingDoc},
		)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Error)
		}

		var batch struct {
			Results []struct {
				Filename   string `json:"filename"`
				FileID     string `json:"file_id"`
				ChunkCount int    `json:"chunk_count"`
				Error      string `json:"error"`
			} `json:"results"`
		}
		resp.DecodeData(t, &batch)
		if len(batch.Results) != 2 {
			t.Fatalf("expected 2 outcomes, got %d", len(batch.Results))
		}
		for _, r := range batch.Results {
			if r.Error != "" {
				t.Fatalf("unexpected ingest error for %s: %s", r.Filename, r.Error)
			}
			if r.ChunkCount != 1 {
				t.Errorf("expected 1 chunk for %s, got %d", r.Filename, r.ChunkCount)
			}
			switch r.Filename {
			case "mechanics.txt":
				mechanicsFileID = r.FileID
			case "baking.txt":
				bakingFileID = r.FileID
			}
		}
		if mechanicsFileID == "" || bakingFileID == "" {
			t.Fatalf("missing file IDs in outcomes: %+v", batch.Results)
		}
	})

	t.Run("raw source archived", func(t *testing.T) {
		data, err := env.Archive.Get(env.Ctx, "sources/"+mechanicsFileID)
		if err != nil {
			t.Fatalf("expected archived source: %v", err)
		}
		if string(data) != string(mechanicsDoc) {
			t.Errorf("archived bytes differ from the upload")
		}
	})

	t.Run("stats reflect chunks", func(t *testing.T) {
		resp := env.Get("/collections/"+collectionID+"/stats", testOwner)
		var stats struct {
			ChunkCount int64 `json:"chunk_count"`
		}
		resp.DecodeData(t, &stats)
		if stats.ChunkCount != 2 {
			t.Errorf("expected 2 chunks, got %d", stats.ChunkCount)
		}
	})

	t.Run("list files", func(t *testing.T) {
		resp := env.Get("/collections/"+collectionID+"/files", testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
		var page struct {
			Items []struct {
				Filename string `json:"filename"`
				Plugin   string `json:"plugin"`
			} `json:"items"`
		}
		resp.DecodeData(t, &page)
		if len(page.Items) != 2 {
			t.Fatalf("expected 2 files, got %d", len(page.Items))
		}
		for _, f := range page.Items {
			if f.Plugin != "file" {
				t.Errorf("expected file plugin, got %q", f.Plugin)
			}
		}
	})

	t.Run("query ranks the relevant chunk first", func(t *testing.T) {
		resp := env.Post("/query", map[string]interface{}{
			"collection_ids": []string{collectionID},
			"question":       "how does a gravity assist change spacecraft velocity",
			"top_k":          5,
		}, testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Error)
		}

		var result struct {
			Results []struct {
				Similarity float64 `json:"similarity"`
				Content    string  `json:"content"`
				Metadata   struct {
					Filename string `json:"filename"`
				} `json:"metadata"`
			} `json:"results"`
		}
		resp.DecodeData(t, &result)
		if len(result.Results) == 0 {
			t.Fatal("expected at least one result")
		}
		top := result.Results[0]
		if !strings.Contains(top.Content, "gravity assist") {
			t.Errorf("expected the mechanics chunk first, got %q", top.Content)
		}
		if top.Metadata.Filename != "mechanics.txt" {
			t.Errorf("expected mechanics.txt metadata, got %q", top.Metadata.Filename)
		}
		if len(result.Results) > 1 && result.Results[1].Similarity > top.Similarity {
			t.Errorf("results not sorted by similarity descending")
		}
	})

	t.Run("threshold filters weak matches", func(t *testing.T) {
		resp := env.Post("/query", map[string]interface{}{
			"collection_ids": []string{collectionID},
			"question":       "gravity assist maneuvers for outer planets",
			"top_k":          5,
			"threshold":      0.99,
		}, testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
		var result struct {
			Results []struct{} `json:"results"`
		}
		resp.DecodeData(t, &result)
		if len(result.Results) != 0 {
			t.Errorf("expected no results above 0.99 similarity, got %d", len(result.Results))
		}
	})

	t.Run("delete file removes its chunks", func(t *testing.T) {
		resp := env.Delete("/files/"+bakingFileID, testOwner)
		if resp.Status != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.Status)
		}

		resp = env.Get("/collections/"+collectionID+"/stats", testOwner)
		var stats struct {
			ChunkCount int64 `json:"chunk_count"`
		}
		resp.DecodeData(t, &stats)
		if stats.ChunkCount != 1 {
			t.Errorf("expected 1 chunk after file delete, got %d", stats.ChunkCount)
		}
	})
}

func TestE2E_WebIngest(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	page := `<html><head><title>Launch Windows</title></head>
<body><h1>Launch Windows</h1>
<p>A launch window opens when the target orbit plane passes over the pad.</p>
</body></html>`
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	}))
	defer site.Close()

	collectionID := env.CreateCollection("Web Notes")

	resp := env.Post("/collections/"+collectionID+"/files", map[string]interface{}{
		"sources": []map[string]interface{}{
			{"plugin": "web", "url": site.URL},
		},
		"chunk_size": 4000,
	}, testOwner)
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Error)
	}

	var batch struct {
		Results []struct {
			FileID     string `json:"file_id"`
			ChunkCount int    `json:"chunk_count"`
			Error      string `json:"error"`
		} `json:"results"`
	}
	resp.DecodeData(t, &batch)
	if len(batch.Results) != 1 || batch.Results[0].Error != "" {
		t.Fatalf("unexpected web ingest outcome: %+v", batch.Results)
	}
	if batch.Results[0].ChunkCount < 1 {
		t.Fatalf("expected at least one chunk from the page")
	}

	queryResp := env.Post("/query", map[string]interface{}{
		"collection_ids": []string{collectionID},
		"question":       "when does a launch window open",
	}, testOwner)
	var result struct {
		Results []struct {
			Content  string `json:"content"`
			Metadata struct {
				Source string `json:"source"`
			} `json:"metadata"`
		} `json:"results"`
	}
	queryResp.DecodeData(t, &result)
	if len(result.Results) == 0 {
		t.Fatal("expected the crawled page to be retrievable")
	}
	if !strings.Contains(result.Results[0].Content, "launch window") {
		t.Errorf("expected page text in chunk, got %q", result.Results[0].Content)
	}
	if result.Results[0].Metadata.Source != site.URL {
		t.Errorf("expected source URL %q in metadata, got %q", site.URL, result.Results[0].Metadata.Source)
	}
}

func TestE2E_Completion(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	collectionID := env.CreateCollection("Trajectory Docs")
	uploadResp := env.UploadFiles(collectionID, testOwner,
		map[string]string{"chunk_size": "4000"},
		map[string][]byte{"assists.txt": []byte(
			"A gravity assist flyby trades momentum with a planet so the spacecraft gains velocity without burning fuel.",
		)},
	)
	if uploadResp.Status != http.StatusOK {
		t.Fatalf("seed upload failed: %d %s", uploadResp.Status, uploadResp.Error)
	}

	assistantID := uuid.NewString()
	env.CreateAssistant(&domain.Assistant{
		ID:            assistantID,
		Name:          "Flight Advisor",
		SystemPrompt:  "You are a mission planning advisor.",
		Provider:      domain.ProviderOpenAI,
		Model:         "gpt-4o-mini",
		CollectionIDs: []string{collectionID},
		TopK:          3,
		Threshold:     0.05,
	})

	t.Run("list and get assistants", func(t *testing.T) {
		resp := env.Get("/assistants", testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
		var assistants []struct {
			ID string `json:"id"`
		}
		resp.DecodeData(t, &assistants)
		if len(assistants) != 1 || assistants[0].ID != assistantID {
			t.Fatalf("expected the seeded assistant, got %+v", assistants)
		}

		resp = env.Get("/assistants/"+assistantID, testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Status)
		}
	})

	t.Run("buffered completion with citations", func(t *testing.T) {
		resp := env.Post("/assistants/"+assistantID+"/complete", map[string]interface{}{
			"question": "how does a gravity assist flyby gain velocity",
		}, testOwner)
		if resp.Status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Error)
		}

		var answer struct {
			Answer    string `json:"answer"`
			Degraded  bool   `json:"degraded"`
			Citations []struct {
				Filename string `json:"filename"`
			} `json:"citations"`
		}
		resp.DecodeData(t, &answer)
		if answer.Answer != "Use a gravity assist." {
			t.Errorf("unexpected answer %q", answer.Answer)
		}
		if answer.Degraded {
			t.Error("completion should not be degraded")
		}
		if len(answer.Citations) != 1 || answer.Citations[0].Filename != "assists.txt" {
			t.Errorf("expected one citation for assists.txt, got %+v", answer.Citations)
		}
	})

	t.Run("streaming completion emits SSE events", func(t *testing.T) {
		body := strings.NewReader(`{"question":"how does a gravity assist flyby gain velocity","stream":true}`)
		req, err := http.NewRequest("POST", env.ServerURL+"/assistants/"+assistantID+"/complete", body)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := env.HTTPClient.Do(req)
		if err != nil {
			t.Fatalf("stream request failed: %v", err)
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
			t.Fatalf("expected SSE content type, got %q", ct)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("failed to read stream: %v", err)
		}
		stream := string(raw)

		tokenIdx := strings.Index(stream, "event: token")
		citationsIdx := strings.Index(stream, "event: citations")
		doneIdx := strings.Index(stream, "event: done")
		if tokenIdx == -1 || citationsIdx == -1 || doneIdx == -1 {
			t.Fatalf("missing events in stream:\n%s", stream)
		}
		if !(tokenIdx < citationsIdx && citationsIdx < doneIdx) {
			t.Errorf("events out of order:\n%s", stream)
		}
		if !strings.Contains(stream, "assists.txt") {
			t.Errorf("expected citation filename in stream:\n%s", stream)
		}
	})

	t.Run("completion is audited", func(t *testing.T) {
		deadline := time.Now().Add(5 * time.Second)
		for {
			var count int
			err := env.Pool.QueryRow(env.Ctx,
				`SELECT COUNT(*) FROM completion_log WHERE assistant_id = $1 AND status = 'completed'`,
				assistantID).Scan(&count)
			if err != nil {
				t.Fatalf("audit query failed: %v", err)
			}
			if count >= 2 {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("expected 2 audited completions, got %d", count)
			}
			time.Sleep(100 * time.Millisecond)
		}
	})

	t.Run("unknown assistant returns 404", func(t *testing.T) {
		resp := env.Post("/assistants/"+uuid.NewString()+"/complete", map[string]interface{}{
			"question": "anything",
		}, testOwner)
		if resp.Status != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.Status)
		}
	})
}

func TestE2E_AuditPruning(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	assistantID := uuid.NewString()
	env.CreateAssistant(&domain.Assistant{
		ID:           assistantID,
		Name:         "Ungrounded",
		SystemPrompt: "Answer briefly.",
		Provider:     domain.ProviderOpenAI,
		Model:        "gpt-4o-mini",
	})

	resp := env.Post("/assistants/"+assistantID+"/complete", map[string]interface{}{
		"question": "hello",
	}, testOwner)
	if resp.Status != http.StatusOK {
		t.Fatalf("completion failed: %d %s", resp.Status, resp.Error)
	}

	// wait for the async audit write, then age the entry past retention
	deadline := time.Now().Add(5 * time.Second)
	for {
		var count int
		if err := env.Pool.QueryRow(env.Ctx,
			`SELECT COUNT(*) FROM completion_log WHERE assistant_id = $1`, assistantID).Scan(&count); err != nil {
			t.Fatalf("audit query failed: %v", err)
		}
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entry never appeared")
		}
		time.Sleep(100 * time.Millisecond)
	}

	if _, err := env.Pool.Exec(env.Ctx,
		`UPDATE completion_log SET created_at = NOW() - INTERVAL '200 days' WHERE assistant_id = $1`,
		assistantID); err != nil {
		t.Fatalf("failed to age audit entry: %v", err)
	}

	if err := env.Janitor.ProcessJobs(env.Ctx); err != nil {
		t.Fatalf("janitor run failed: %v", err)
	}

	var remaining int
	if err := env.Pool.QueryRow(env.Ctx,
		`SELECT COUNT(*) FROM completion_log WHERE assistant_id = $1`, assistantID).Scan(&remaining); err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected pruned audit log, %d entries remain", remaining)
	}
}

func TestE2E_Plugins(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Cleanup()

	resp := env.Get("/plugins", "")
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}

	var plugins []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	resp.DecodeData(t, &plugins)

	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	want := []string{"file", "video", "web"}
	if len(names) != len(want) {
		t.Fatalf("expected plugins %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected plugins sorted as %v, got %v", want, names)
		}
	}
}
