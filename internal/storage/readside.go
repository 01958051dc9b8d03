package storage

import "go.uber.org/zap"

// ReadSide provides get/list access outside any UnitOfWork, for read-only
// query paths (campaign list/get, places-of, tasks-of) that have no need
// for transactional isolation. It shares the same *sql.DB as the Store but
// never opens a transaction or buffers writes, per spec.md §4.2.
type ReadSide struct {
	Campaigns *CampaignRepository
	Tasks     *TaskRepository
	Places    *PlaceRepository
}

// ReadSide returns a read-only view over the Store's connection pool.
func (s *Store) ReadSide() *ReadSide {
	return &ReadSide{
		Campaigns: &CampaignRepository{tx: s.db, log: s.log},
		Tasks:     &TaskRepository{tx: s.db, log: s.log},
		Places:    &PlaceRepository{tx: s.db, log: s.log},
	}
}
