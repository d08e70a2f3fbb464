package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 4 << 20
)

// Server exposes the App over HTTP and websocket subscriptions
type Server struct {
	app      *App
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer builds the HTTP API
func NewServer(app *App) *Server {
	s := &Server{
		app:    app,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.routes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.userMiddleware, s.logMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if m := s.app.Metrics(); m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects", s.handleCreateProject).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", s.handleUpdateProject).Methods(http.MethodPatch)
	api.HandleFunc("/projects/{id}", s.handleDeleteProject).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{id}/videos", s.handleListVideos).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/videos", s.handleUploadVideo).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/uploads", s.handlePrepareUpload).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/generate", s.handleGenerateAll).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/canvas", s.handleGetCanvas).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/canvas", s.handleSaveCanvas).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}/canvas/connections", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/canvas/connections/{edge}", s.handleDisconnect).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{id}/canvas/viewport", s.handleViewport).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}/subscribe", s.handleSubscribe).Methods(http.MethodGet)

	api.HandleFunc("/videos/{id}", s.handleGetVideo).Methods(http.MethodGet)
	api.HandleFunc("/videos/{id}", s.handleRenameVideo).Methods(http.MethodPatch)
	api.HandleFunc("/videos/{id}", s.handleDeleteVideo).Methods(http.MethodDelete)
	api.HandleFunc("/videos/{id}/complete", s.handleCompleteUpload).Methods(http.MethodPost)
	api.HandleFunc("/videos/{id}/transcribe", s.handleTranscribe).Methods(http.MethodPost)
	api.HandleFunc("/videos/{id}/transcription", s.handleTranscription).Methods(http.MethodGet)
	api.HandleFunc("/videos/{id}/agents", s.handleAddAgent).Methods(http.MethodPost)

	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.handleUpdateAgent).Methods(http.MethodPatch)
	api.HandleFunc("/agents/{id}", s.handleDeleteAgent).Methods(http.MethodDelete)
	api.HandleFunc("/agents/{id}/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}/refine", s.handleRefine).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}/export", s.handleExportAgent).Methods(http.MethodGet)

	api.HandleFunc("/profile", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleSaveProfile).Methods(http.MethodPut)
	api.HandleFunc("/profile/import", s.handleImportProfile).Methods(http.MethodPost)

	api.HandleFunc("/files/{key:.+}", s.handlePutFile).Methods(http.MethodPut)
	api.HandleFunc("/files/{key:.+}", s.handleGetFile).Methods(http.MethodGet)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		LogInfo("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		LogInfo("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Middleware

const userHeader = "X-User-ID"

func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get(userHeader); user != "" {
			r = r.WithContext(WithUserID(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.app.Metrics().observeRequest(route, rec.status)
		LogInfo("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// Response helpers

type errorResponse struct {
	Error    string        `json:"error"`
	Category ErrorCategory `json:"category"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		LogError("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		LogError("%v", err)
	}
	writeJSON(w, status, errorResponse{Error: UserMessage(err), Category: Classify(err)})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 8<<20)).Decode(v); err != nil {
		return Wrap(ErrValidation, "decoding request", err)
	}
	return nil
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Projects

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.app.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.app.CreateProject(r.Context(), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	details, err := s.app.GetProjectDetails(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var update ProjectUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.app.UpdateProject(r.Context(), pathVar(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteProject(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Videos

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.app.ListVideos(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, videos)
}

// handleUploadVideo accepts a multipart form with a "file" part and optional
// "captions" and "title" parts
func (s *Server) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	limit := s.app.Config().MaxUploadSize
	if limit <= 0 {
		limit = DefaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, Wrap(ErrUpload, "reading upload", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, Wrap(ErrValidation, "upload", fmt.Errorf("missing file part")))
		return
	}
	defer file.Close()

	upload := VideoUpload{
		Title:    r.FormValue("title"),
		FileName: header.Filename,
		Body:     file,
		Size:     header.Size,
	}
	if captions, captionsHeader, err := r.FormFile("captions"); err == nil {
		defer captions.Close()
		upload.Captions = captions
		upload.CaptionsName = captionsHeader.Filename
	}

	v, err := s.app.UploadVideo(r.Context(), pathVar(r, "id"), upload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handlePrepareUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		FileName string `json:"fileName"`
		Size     int64  `json:"size"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, url, err := s.app.PrepareUpload(r.Context(), pathVar(r, "id"), req.Title, req.FileName, req.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"video": v, "uploadUrl": url})
}

func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	v, err := s.app.CompleteUpload(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	v, err := s.app.GetVideo(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRenameVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	v, err := s.app.RenameVideo(r.Context(), pathVar(r, "id"), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteVideo(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.app.StartTranscription(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(TranscriptionProcessing)})
}

// handleTranscription returns the video's transcription state. With
// ?wait=true it blocks until the transcription finishes or the request ends.
func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	var (
		v   *Video
		err error
	)
	if wait {
		v, err = s.app.WaitForTranscription(r.Context(), id)
		if v != nil && (err == nil || v.TranscriptionStatus == TranscriptionFailed) {
			err = nil
		}
	} else {
		v, err = s.app.GetVideo(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        v.TranscriptionStatus,
		"error":         v.TranscriptionError,
		"transcription": v.Transcription,
	})
}

// Agents

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.app.ListAgents(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string    `json:"type"`
		Position *Position `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	agentType, err := ParseAgentType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := s.app.AddAgent(r.Context(), pathVar(r, "id"), agentType, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.app.GetAgent(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Draft string `json:"draft"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := s.app.UpdateAgentDraft(r.Context(), pathVar(r, "id"), req.Draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteAgent(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	a, err := s.app.GenerateAgent(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := s.app.RefineAgent(r.Context(), pathVar(r, "id"), req.Feedback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	agents, err := s.app.GenerateAll(r.Context(), pathVar(r, "id"))
	resp := map[string]any{"agents": agents}
	if err != nil {
		if len(agents) == 0 {
			writeError(w, err)
			return
		}
		resp["error"] = UserMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportAgent(w http.ResponseWriter, r *http.Request) {
	md, err := s.app.ExportAgent(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, md)
}

// Canvas

func (s *Server) handleGetCanvas(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.GetCanvas(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSaveCanvas(w http.ResponseWriter, r *http.Request) {
	var c Canvas
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, err)
		return
	}
	if err := s.app.SaveCanvas(r.Context(), pathVar(r, "id"), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &c)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	edge, err := s.app.Connect(r.Context(), pathVar(r, "id"), req.Source, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Disconnect(r.Context(), pathVar(r, "id"), pathVar(r, "edge")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var vp Viewport
	if err := decodeJSON(r, &vp); err != nil {
		writeError(w, err)
		return
	}
	vp, err := s.app.SetViewport(r.Context(), pathVar(r, "id"), vp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vp)
}

// clientMessage is sent by subscribers. A "canvas" message carries a snapshot
// to autosave. When Pending lists the node and edge ids the client changed,
// only those are taken from the snapshot and the rest follows the stored
// canvas.
type clientMessage struct {
	Type    string   `json:"type"`
	Canvas  *Canvas  `json:"canvas,omitempty"`
	Pending []string `json:"pending,omitempty"`
}

// handleSubscribe streams project change events over a websocket. Canvas
// snapshots sent by the client are saved through a debouncer, which is
// flushed when the connection closes.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	projectID := pathVar(r, "id")
	if _, err := s.app.GetProject(r.Context(), projectID); err != nil {
		writeError(w, err)
		return
	}

	// subscribe before the handshake so no event after it is missed
	hub := s.app.Hub()
	events := hub.Subscribe(projectID)
	defer hub.Unsubscribe(projectID, events)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		LogError("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	s.app.Metrics().subscriberDelta(1)
	defer s.app.Metrics().subscriberDelta(-1)

	// failed saves are reported to this subscriber only, by the writer loop
	failures := make(chan Event, subscriberBuffer)
	report := func(err error) {
		LogError("autosave canvas %s: %v", projectID, err)
		ev := Event{Kind: EventCanvasRejected, ProjectID: projectID, Error: UserMessage(err), At: time.Now().UTC()}
		select {
		case failures <- ev:
		default:
		}
	}

	autosave := s.app.NewAutosaver(r.Context(), projectID)
	autosave.OnError(report)
	defer func() {
		if err := autosave.Stop(context.WithoutCancel(r.Context())); err != nil {
			LogError("final autosave for %s: %v", projectID, err)
		}
	}()

	done := make(chan struct{})
	go s.readSubscriber(r.Context(), conn, projectID, autosave, report, done)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case ev := <-failures:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readSubscriber(ctx context.Context, conn *websocket.Conn, projectID string, autosave *Debouncer, report func(error), done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				LogError("websocket read: %v", err)
			}
			return
		}
		if msg.Type != "canvas" || msg.Canvas == nil {
			continue
		}
		snapshot := msg.Canvas
		if len(msg.Pending) > 0 {
			stored, err := s.app.GetCanvas(ctx, projectID)
			if err != nil {
				report(err)
				continue
			}
			pending := make(map[string]bool, len(msg.Pending))
			for _, id := range msg.Pending {
				pending[id] = true
			}
			snapshot = Reconcile(stored, msg.Canvas, pending)
		}
		autosave.Trigger(snapshot)
	}
}

// Profile

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.GetProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if err := s.app.SaveProfile(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &p)
}

func (s *Server) handleImportProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.app.ImportProfileContext(r.Context(), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Files

// handlePutFile receives uploads sent to a local upload URL
func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	limit := s.app.Config().MaxUploadSize
	if limit <= 0 {
		limit = DefaultMaxUploadSize
	}
	if r.ContentLength > limit {
		writeError(w, Wrap(ErrValidation, "upload", fmt.Errorf("file too large")))
		return
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := s.app.PutUploadedFile(r.Context(), pathVar(r, "key"), body, r.ContentLength, r.Header.Get("Content-Type")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rc, err := s.app.OpenMedia(r.Context(), pathVar(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", ContentType(pathVar(r, "key")))
	if _, err := io.Copy(w, rc); err != nil {
		LogError("serving %s: %v", pathVar(r, "key"), err)
	}
}
