// Package monitoring turns a running simulation into a small web server so
// that external tools can observe it. Every data endpoint is read-only; the
// only mutations offered are the pause/run controls, which go through the
// engine's cooperative pause flag.
package monitoring

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	// Enable profiling.
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"

	"github.com/flowlab/flowsim/engine"
	"github.com/flowlab/flowsim/scenario"
)

// A Monitor exposes one engine over HTTP.
type Monitor struct {
	engine      *engine.Engine
	portNumber  int
	openBrowser bool
	log         *logrus.Logger

	registry *prometheus.Registry
	metrics  *MetricsHook
}

// NewMonitor creates a Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		log:      logrus.New(),
		registry: prometheus.NewRegistry(),
	}
}

// WithPortNumber sets the listening port. Ports below 1000 are refused and
// replaced with a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the monitoring server, "+
				"using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser opens the progress endpoint in a browser once the server is
// up.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true

	return m
}

// RegisterEngine registers the engine to monitor and attaches the metrics
// hook to it.
func (m *Monitor) RegisterEngine(e *engine.Engine) {
	m.engine = e

	m.metrics = NewMetricsHook(m.registry)
	e.AcceptHook(m.metrics)
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return err
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/progress", m.progress).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes", m.listNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes/{id}", m.nodeDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/queue", m.queue).Methods(http.MethodGet)
	r.HandleFunc("/api/history", m.history).Methods(http.MethodGet)
	r.HandleFunc("/api/activities", m.activities).Methods(http.MethodGet)
	r.HandleFunc("/api/resources", m.resources).Methods(http.MethodGet)
	r.HandleFunc("/api/pause", m.pause).Methods(http.MethodPost)
	r.HandleFunc("/api/run", m.run).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry,
		promhttp.HandlerOpts{}))
	r.PathPrefix("/debug/").Handler(http.DefaultServeMux)

	addr := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.log.WithField("addr", addr).Info("monitoring server started")

	if m.openBrowser {
		_ = browser.OpenURL(addr + "/api/progress")
	}

	go func() {
		if err := http.Serve(listener, r); err != nil {
			m.log.WithError(err).Error("monitoring server stopped")
		}
	}()

	return nil
}

func (m *Monitor) progress(w http.ResponseWriter, _ *http.Request) {
	queueLen := 0
	if q := m.engine.Queue(); q != nil {
		queueLen = q.Len()
	}

	writeJSON(w, map[string]any{
		"state":     m.engine.State(),
		"now":       m.engine.Now(),
		"steps":     m.engine.StepCount(),
		"queue_len": queueLen,
	})
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	scn := m.engine.Scenario()
	if scn == nil {
		http.Error(w, "engine is not initialized", http.StatusConflict)
		return
	}

	writeJSON(w, map[string]any{
		"name":     scn.Name(),
		"stats":    scn.GetStats(),
		"warnings": scn.Warnings(),
	})
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	scn := m.engine.Scenario()
	if scn == nil {
		http.Error(w, "engine is not initialized", http.StatusConflict)
		return
	}

	type nodeInfo struct {
		ID          string            `json:"id"`
		Type        scenario.NodeType `json:"type"`
		DisplayName string            `json:"display_name,omitempty"`
	}

	var nodes []nodeInfo
	for _, id := range scn.NodeIDs() {
		n := scn.Node(id)
		nodes = append(nodes, nodeInfo{
			ID:          n.ID,
			Type:        n.Type,
			DisplayName: n.DisplayName,
		})
	}

	writeJSON(w, nodes)
}

// nodeDetail serializes a node's internal state, including unexported
// fields, which plain JSON marshaling cannot reach.
func (m *Monitor) nodeDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	state := m.engine.NodeState(id)
	if state == nil {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(state)
	serializer.SetMaxDepth(3)

	if err := serializer.Serialize(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Monitor) queue(w http.ResponseWriter, _ *http.Request) {
	q := m.engine.Queue()
	if q == nil {
		http.Error(w, "engine is not initialized", http.StatusConflict)
		return
	}

	writeJSON(w, q.Snapshot())
}

func (m *Monitor) history(w http.ResponseWriter, _ *http.Request) {
	q := m.engine.Queue()
	if q == nil {
		http.Error(w, "engine is not initialized", http.StatusConflict)
		return
	}

	writeJSON(w, q.History())
}

func (m *Monitor) activities(w http.ResponseWriter, r *http.Request) {
	l := m.engine.Ledger()
	if l == nil {
		http.Error(w, "engine is not initialized", http.StatusConflict)
		return
	}

	if nodeID := r.URL.Query().Get("node"); nodeID != "" {
		writeJSON(w, l.NodeEntries(nodeID))
		return
	}

	writeJSON(w, l.Entries())
}

func (m *Monitor) resources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memInfo, err := p.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"cpu_percent": cpuPercent,
		"memory_rss":  memInfo.RSS,
	})
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

// run resumes a paused engine in the background. The engine's cooperative
// run loop makes concurrent run requests safe; the extras just wait.
func (m *Monitor) run(w http.ResponseWriter, r *http.Request) {
	maxSteps, _ := strconv.Atoi(r.URL.Query().Get("max_steps"))

	go func() {
		if _, err := m.engine.Run(maxSteps); err != nil {
			m.log.WithError(err).Error("run request failed")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
