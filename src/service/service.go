// Package service exposes a node's state over HTTP.
package service

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/hearsay/src/gossip"
	"github.com/mosaicnetworks/hearsay/src/node"
	"github.com/mosaicnetworks/hearsay/src/peers"
	"github.com/mosaicnetworks/hearsay/src/telemetry"
	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is usefull when hearsay is used
// in-memory and expected to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Hearsay API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	http.HandleFunc("/items", s.makeHandler(s.GetItems))
	http.HandleFunc("/item/", s.makeHandler(s.GetItem))
	http.HandleFunc("/submit", s.makeHandler(s.Submit))
	http.Handle("/metrics", telemetry.MetricsHandler())
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when hearsay is used in-memory and another server has already
// been started with the DefaultServerMux and the same address:port
// combination. Indeed, hearsay API handlers have already been registered when
// the service was instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Hearsay API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	returnPeerSet(w, r, s.node.GetPeers())
}

// GetItems returns the IDs of the items currently tracked by the gossip
// table.
func (s *Service) GetItems(w http.ResponseWriter, r *http.Request) {
	items := s.node.GetItemIDs()

	res := make([]string, len(items))
	for i, item := range items {
		res[i] = item.String()
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(res)
}

// GetItem returns the body of a stored item, addressed by its hex ID.
func (s *Service) GetItem(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/item/"):]

	item, err := gossip.ParseItemID(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing item parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	payload, err := s.node.GetItem(item)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving item %s", param)

		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")

	w.Write(payload)
}

// Submit reads the request body and queues it for dissemination.
func (s *Service) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "expected POST", http.StatusMethodNotAllowed)
		return
	}

	payload, err := ioutil.ReadAll(r.Body)
	if err != nil {
		s.logger.WithError(err).Error("Reading submit body")

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}
	defer r.Body.Close()

	if len(payload) == 0 {
		http.Error(w, "empty payload", http.StatusBadRequest)
		return
	}

	s.node.Submit(payload)

	item := gossip.NewItemID(payload)

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(map[string]string{"item": item.String()})
}

func returnPeerSet(w http.ResponseWriter, r *http.Request, peers []*peers.Peer) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(peers)
}
