// Package monitoring serves the state of a running inference over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/bankfinder/addrspace"
	"github.com/sarchlab/bankfinder/hooking"
	"github.com/sarchlab/bankfinder/inference"
	"github.com/sarchlab/bankfinder/monitoring/web"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor observes inference runs through hooks and serves what it has
// seen. The HTTP handlers only read the monitor's own copies of the run
// state, never the run itself.
type Monitor struct {
	portNumber int
	listener   net.Listener

	lock         sync.Mutex
	progressBars []*ProgressBar
	bars         map[string]*ProgressBar
	entries      []addrspace.Entry
	banks        []bankRsp
	conflicts    []conflictRsp
}

type bankRsp struct {
	RunID  string `json:"run_id"`
	ID     int    `json:"id"`
	Master string `json:"master"`
	Size   int    `json:"size"`
}

type conflictRsp struct {
	RunID       string `json:"run_id"`
	Entry       string `json:"entry"`
	PriorMaster string `json:"prior_master"`
	Master      string `json:"master"`
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		bars: make(map[string]*ProgressBar),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		slog.Warn("monitor port not allowed, using a random port instead",
			"port", portNumber)

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := NewProgressBar(name, total)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.lock.Lock()
	defer m.lock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// RegisterRun starts observing a run. It must be called before the run
// executes.
func (m *Monitor) RegisterRun(run *inference.Run) {
	bar := m.CreateProgressBar("Run "+run.ID(), uint64(run.Table().NumPairs()))

	m.lock.Lock()
	m.bars[run.ID()] = bar
	m.entries = run.Table().Entries()
	m.lock.Unlock()

	run.AcceptHook(m)
}

// Func updates the monitor's view of the run.
func (m *Monitor) Func(ctx hooking.HookCtx) {
	run, ok := ctx.Domain.(*inference.Run)
	if !ok {
		return
	}

	m.lock.Lock()
	bar := m.bars[run.ID()]
	m.lock.Unlock()

	if bar == nil {
		return
	}

	switch ctx.Pos {
	case inference.HookPosSampleRead:
		bar.IncrementFinished(1)
	case inference.HookPosRowSkipped:
		skip := ctx.Item.(inference.RowSkip)
		absent := run.Table().Len() - skip.Index - 1 - skip.Samples
		bar.IncrementFinished(uint64(absent))
	case inference.HookPosSiblingClaimed:
		c := ctx.Item.(inference.Claim)
		m.updateEntry(c.Entry, func(e *addrspace.Entry) { e.Master = c.Master })
	case inference.HookPosConflict:
		m.recordConflict(run, ctx.Item.(inference.Conflict))
	case inference.HookPosBankAssigned:
		m.recordBank(run, ctx.Item.(inference.Bank))
	}
}

func (m *Monitor) updateEntry(i int, f func(e *addrspace.Entry)) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if i < len(m.entries) {
		f(&m.entries[i])
	}
}

func (m *Monitor) recordConflict(run *inference.Run, c inference.Conflict) {
	t := run.Table()
	rsp := conflictRsp{
		RunID:       run.ID(),
		Entry:       hexAddr(t, c.Entry),
		PriorMaster: hexAddr(t, c.PriorMaster),
		Master:      hexAddr(t, c.Master),
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.conflicts = append(m.conflicts, rsp)
}

func (m *Monitor) recordBank(run *inference.Run, b inference.Bank) {
	rsp := bankRsp{
		RunID:  run.ID(),
		ID:     b.ID,
		Master: hexAddr(run.Table(), b.Master),
		Size:   b.Size(),
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.banks = append(m.banks, rsp)
	for _, i := range b.Members() {
		if i < len(m.entries) {
			m.entries[i].BankID = b.ID
		}
	}
}

func hexAddr(t *addrspace.Table, i int) string {
	return fmt.Sprintf("0x%x", t.Entry(i).PhysAddr)
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/entry/{index}", m.showEntry)
	r.HandleFunc("/api/banks", m.listBanks)
	r.HandleFunc("/api/conflicts", m.listConflicts)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server in the background.
func (m *Monitor) StartServer() error {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return fmt.Errorf("monitoring: %w", err)
	}

	m.listener = listener

	slog.Info("monitoring run", "url", m.URL())

	router := m.Router()

	go func() {
		err := http.Serve(listener, router)
		if err != nil {
			slog.Debug("monitor stopped", "err", err)
		}
	}()

	return nil
}

// URL returns the address of a started server.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// OpenInBrowser opens the monitor page with the default browser.
func (m *Monitor) OpenInBrowser() error {
	return browser.OpenURL(m.URL())
}

// StopServer closes the listener of the server.
func (m *Monitor) StopServer() error {
	if m.listener == nil {
		return nil
	}

	return m.listener.Close()
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	bars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.lock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()

	process, err := process.NewProcess(int32(pid))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := process.CPUPercent()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	memorySize, err := process.MemoryInfo()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, prof)
}

func (m *Monitor) showEntry(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	m.lock.Lock()
	if index < 0 || index >= len(m.entries) {
		m.lock.Unlock()
		writeError(w, http.StatusNotFound,
			fmt.Errorf("entry %d not found", index))

		return
	}

	entry := m.entries[index]
	m.lock.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&entry)
	serializer.SetMaxDepth(1)

	err = serializer.Serialize(w)
	if err != nil {
		slog.Debug("failed to serialize entry", "err", err)
	}
}

func (m *Monitor) listBanks(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	banks := append([]bankRsp{}, m.banks...)
	m.lock.Unlock()

	writeJSON(w, banks)
}

func (m *Monitor) listConflicts(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	conflicts := append([]conflictRsp{}, m.conflicts...)
	m.lock.Unlock()

	writeJSON(w, conflicts)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	if err != nil {
		slog.Debug("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	fmt.Fprintf(w, "Error: %s", err)
}
