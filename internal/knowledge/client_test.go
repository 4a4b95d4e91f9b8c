package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voice-widget/internal/models"
	"voice-widget/internal/observability/metrics"
)

// testBackend is a minimal document API.
type testBackend struct {
	docs     []models.Document
	requests atomic.Int32
	uploads  atomic.Int32
	status   int
	lastFile []byte
	lastType string
}

func (b *testBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		if b.status != 0 {
			w.WriteHeader(b.status)
			return
		}
		json.NewEncoder(w).Encode(b.docs)
	})
	mux.HandleFunc("POST /uploadDoc", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		b.uploads.Add(1)
		if b.status != 0 {
			w.WriteHeader(b.status)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing multipart field 'file': %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		b.lastFile, _ = io.ReadAll(file)
		b.lastType = header.Header.Get("Content-Type")

		doc := models.Document{DocID: "doc-new", Filename: header.Filename, ChunkCount: 3}
		b.docs = append(b.docs, doc)
		json.NewEncoder(w).Encode(models.UploadResult{DocID: doc.DocID, Filename: doc.Filename})
	})
	mux.HandleFunc("DELETE /documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		id := r.PathValue("id")
		kept := b.docs[:0]
		found := false
		for _, d := range b.docs {
			if d.DocID == id {
				found = true
				continue
			}
			kept = append(kept, d)
		}
		b.docs = kept
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"deleted"}`))
	})
	return mux
}

func newTestClient(t *testing.T, backend *testBackend) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewClient(Config{BaseURL: srv.URL + "/", Metrics: m}, srv.Client()), m
}

func TestClient_List(t *testing.T) {
	backend := &testBackend{docs: []models.Document{
		{DocID: "d1", Filename: "scrum.pdf", UploadDate: "2024-05-01T10:00:00", ChunkCount: 12},
	}}
	client, _ := newTestClient(t, backend)

	docs, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].Filename != "scrum.pdf" || docs[0].ChunkCount != 12 {
		t.Errorf("unexpected documents %+v", docs)
	}
}

func TestClient_List_Non2xx(t *testing.T) {
	backend := &testBackend{status: http.StatusInternalServerError}
	client, m := newTestClient(t, backend)

	_, err := client.List(context.Background())
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("expected ErrRequest, got %v", err)
	}
	if got := testutil.ToFloat64(m.DocumentRequests.WithLabelValues("list", "error")); got != 1 {
		t.Errorf("expected 1 failed list request, got %v", got)
	}
}

func TestClient_Upload_SendsMultipart(t *testing.T) {
	backend := &testBackend{}
	client, _ := newTestClient(t, backend)

	data := pdfBytes(2 << 20)
	result, err := client.Upload(context.Background(), File{Name: "guide.pdf", ContentType: PDFContentType, Data: data})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DocID != "doc-new" || result.Filename != "guide.pdf" {
		t.Errorf("unexpected result %+v", result)
	}
	if len(backend.lastFile) != len(data) {
		t.Errorf("expected %d bytes uploaded, got %d", len(data), len(backend.lastFile))
	}
	if backend.lastType != PDFContentType {
		t.Errorf("expected part content type %s, got %s", PDFContentType, backend.lastType)
	}
}

func TestClient_Upload_RejectedWithoutNetwork(t *testing.T) {
	tests := []struct {
		name   string
		file   File
		reason string
	}{
		{
			name:   "12 MiB pdf",
			file:   File{Name: "big.pdf", ContentType: PDFContentType, Data: pdfBytes(12 << 20)},
			reason: ReasonSize,
		},
		{
			name: "5 MiB docx",
			file: File{
				Name:        "notes.docx",
				ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				Data:        make([]byte, 5<<20),
			},
			reason: ReasonType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &testBackend{}
			client, m := newTestClient(t, backend)

			_, err := client.Upload(context.Background(), tt.file)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if backend.requests.Load() != 0 {
				t.Errorf("expected no network call, got %d", backend.requests.Load())
			}
			if got := testutil.ToFloat64(m.UploadsRejected.WithLabelValues(tt.reason)); got != 1 {
				t.Errorf("expected 1 rejection for %s, got %v", tt.reason, got)
			}
		})
	}
}

func TestClient_Delete(t *testing.T) {
	backend := &testBackend{docs: []models.Document{{DocID: "d1"}}}
	client, _ := newTestClient(t, backend)

	if err := client.Delete(context.Background(), "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backend.docs) != 0 {
		t.Errorf("expected document removed, got %+v", backend.docs)
	}

	if err := client.Delete(context.Background(), "missing"); !errors.Is(err, ErrRequest) {
		t.Errorf("expected ErrRequest for unknown document, got %v", err)
	}
}
