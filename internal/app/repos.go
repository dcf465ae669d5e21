package app

import (
	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/repos"
)

type Repos struct {
	Profile       repos.ProfileRepo
	Context       repos.ContextRepo
	Subscription  repos.SubscriptionRepo
	ScheduledTask repos.ScheduledTaskRepo
	DeliveryLog   repos.DeliveryLogRepo
	RateWindow    repos.RateWindowRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Profile:       repos.NewProfileRepo(db, log),
		Context:       repos.NewContextRepo(db, log),
		Subscription:  repos.NewSubscriptionRepo(db, log),
		ScheduledTask: repos.NewScheduledTaskRepo(db, log),
		DeliveryLog:   repos.NewDeliveryLogRepo(db, log),
		RateWindow:    repos.NewRateWindowRepo(db, log),
	}
}
