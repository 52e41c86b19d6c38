//go:build integration

package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/caleheinzz25/realtime-energy-monitoring/natsclient"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

type KVIntegrationSuite struct {
	suite.Suite
	testClient *natsclient.TestClient
	registry   *KV
	ctx        context.Context
	cancel     context.CancelFunc
	bucket     int
}

func (s *KVIntegrationSuite) SetupSuite() {
	s.testClient = natsclient.NewTestClient(s.T(), natsclient.WithJetStream())
}

func (s *KVIntegrationSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)

	// fresh bucket per test
	s.bucket++
	var err error
	s.registry, err = OpenKV(s.ctx, s.testClient.Client, fmt.Sprintf("PANELS_TEST_%d", s.bucket))
	s.Require().NoError(err)
}

func (s *KVIntegrationSuite) TearDownTest() {
	s.Require().NoError(s.registry.Close())
	s.cancel()
}

func (s *KVIntegrationSuite) TestContract() {
	testRegistryContract(s.T(), s.registry)
}

func (s *KVIntegrationSuite) TestOpenExistingBucket() {
	s.Require().NoError(Seed(s.ctx, s.registry, DefaultPanels()))

	reopened, err := OpenKV(s.ctx, s.testClient.Client, fmt.Sprintf("PANELS_TEST_%d", s.bucket))
	s.Require().NoError(err)

	panels, err := reopened.List(s.ctx)
	s.Require().NoError(err)
	s.Len(panels, 3)
}

func (s *KVIntegrationSuite) TestConcurrentUpdateLastSeen() {
	s.Require().NoError(Seed(s.ctx, s.registry, DefaultPanels()))

	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := range 4 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.registry.UpdateLastSeen(s.ctx, "PANEL_LANTAI_1", usage.Online, base.Add(time.Duration(i)*time.Second))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	panels, err := s.registry.List(s.ctx)
	s.Require().NoError(err)
	s.Equal(usage.Online, panels[0].Status)
	s.False(panels[0].LastOnline.Before(base))
}

func TestKVIntegrationSuite(t *testing.T) {
	suite.Run(t, new(KVIntegrationSuite))
}
