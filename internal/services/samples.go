package services

import (
	"time"

	"copenhagenbuzz/internal/domain"
)

// SampleOwnerID owns every seeded sample event.
const SampleOwnerID = "test-uid-123"

type sample struct {
	name, eventType, description, photoSeed string
	location                                domain.Location
}

var samples = []sample{
	{"Copenhagen Jazz Festival", "Festival", "Annual jazz festival in the city center.", "jazz",
		domain.Location{Latitude: 55.6761, Longitude: 12.5683, Address: "Kongens Nytorv, 1050 København K"}},
	{"Food Market", "Market", "Taste local and international food.", "food",
		domain.Location{Latitude: 55.6871, Longitude: 12.5992, Address: "Torvehallerne, Frederiksborggade 21, 1360 København K"}},
	{"Art Exhibition", "Exhibition", "Modern art from Danish artists.", "art",
		domain.Location{Latitude: 55.6901, Longitude: 12.5996, Address: "Statens Museum for Kunst, Sølvgade 48-50, 1307 København K"}},
	{"Tech Meetup", "Meetup", "Networking for tech enthusiasts.", "tech",
		domain.Location{Latitude: 55.6627, Longitude: 12.5916, Address: "IT-Universitetet, Rued Langgaards Vej 7, 2300 København S"}},
	{"Opera Night", "Concert", "Enjoy a night at the opera.", "opera",
		domain.Location{Latitude: 55.6815, Longitude: 12.6009, Address: "Operaen, Ekvipagemestervej 10, 1438 København K"}},
	{"Street Food Festival", "Festival", "Street food from around the world.", "streetfood",
		domain.Location{Latitude: 55.6929, Longitude: 12.5991, Address: "Reffen, Refshalevej 167A, 1432 København K"}},
	{"Book Fair", "Fair", "Meet authors and buy books.", "book",
		domain.Location{Latitude: 55.6759, Longitude: 12.5655, Address: "Rådhuspladsen, 1599 København V"}},
	{"Film Screening", "Screening", "Classic films on the big screen.", "film",
		domain.Location{Latitude: 55.6731, Longitude: 12.5683, Address: "Grand Teatret, Mikkel Bryggers Gade 8, 1460 København K"}},
	{"Yoga in the Park", "Wellness", "Morning yoga session outdoors.", "yoga",
		domain.Location{Latitude: 55.6833, Longitude: 12.5714, Address: "Østre Anlæg, 2100 København Ø"}},
	{"Startup Pitch Night", "Business", "Startups pitch to investors.", "startup",
		domain.Location{Latitude: 55.6761, Longitude: 12.5683, Address: "Founders House, Njalsgade 19D, 2300 København S"}},
}

// SampleEvents returns the demo batch, one event per day starting the day after now.
func SampleEvents(now time.Time) []*domain.Event {
	out := make([]*domain.Event, 0, len(samples))
	for i, s := range samples {
		start := now.Add(time.Duration(i+1) * 24 * time.Hour)
		out = append(out, domain.NewEvent(s.name, s.description, s.eventType, s.location, start,
			"https://picsum.photos/seed/"+s.photoSeed+"/600/400", SampleOwnerID))
	}
	return out
}
