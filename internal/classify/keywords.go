package classify

const (
	DefaultCategory = "general"
	DefaultRegion   = "Sarawak"
)

// regionalKeywords decide whether an item belongs in the corpus at all: place names,
// communities, festivals and political entities of Sarawak.
var regionalKeywords = []string{
	"sarawak", "borneo", "kuching", "miri", "sibu", "bintulu", "samarahan",
	"sri aman", "betong", "sarikei", "kapit", "mukah", "limbang", "serian",
	"lawas", "marudi", "lundu", "bau", "belaga", "kanowit", "saratok",
	"santubong", "padawan", "petra jaya", "baram", "rajang", "batang ai",
	"iban", "bidayuh", "melanau", "orang ulu", "kenyah", "kayan", "penan", "dayak",
	"gawai", "bumi kenyalang", "kenyalang",
	"gabungan parti sarawak", "gps", "pbb", "prs", "pdp",
	"abang johari", "premier of sarawak", "dun sarawak", "sarawak assembly",
	"sarawak energy", "sedc", "petros", "unimas", "swinburne sarawak", "curtin malaysia",
}

var categoryTables = []Table{
	{Name: "politics", Keywords: []string{
		"election", "minister", "premier", "parliament", "assembly", "political",
		"politics", "party", "opposition", "government", "candidate",
		"policy", "cabinet", "adun", "vote", "voter",
	}},
	{Name: "economy", Keywords: []string{
		"economy", "economic", "gdp", "investment", "investor", "trade", "export",
		"ringgit", "business", "industry", "market", "budget", "revenue", "inflation",
		"price", "oil palm", "timber", "petroleum", "hydrogen", "startup",
	}},
	{Name: "sports", Keywords: []string{
		"badminton", "football", "championship", "tournament", "athlete", "league",
		"match", "medal", "sukma", "stadium", "world cup", "olympic", "marathon", "team",
		"coach", "player", "boxing", "cycling",
	}},
	{Name: "crime", Keywords: []string{
		"police", "arrest", "crime", "murder", "robbery", "theft", "drug", "smuggl",
		"court", "charged", "sentenced", "fraud", "scam", "suspect", "remand", "jail",
	}},
	{Name: "environment", Keywords: []string{
		"environment", "forest", "rainforest", "wildlife", "orangutan", "hornbill",
		"flood", "haze", "pollution", "climate", "deforestation", "conservation",
		"river", "landslide", "drought", "biodiversity",
	}},
	{Name: "culture", Keywords: []string{
		"festival", "culture", "cultural", "heritage", "gawai", "tradition",
		"dance", "music", "rainforest world music", "longhouse", "museum", "artist",
		"craft", "community", "celebration", "ngajat", "sape",
	}},
	{Name: "education", Keywords: []string{
		"school", "university", "student", "teacher", "education", "scholarship",
		"exam", "spm", "graduate", "campus", "classroom", "unimas", "curriculum",
	}},
	{Name: "health", Keywords: []string{
		"hospital", "health", "clinic", "doctor", "patient", "covid", "dengue",
		"vaccine", "disease", "medical", "nurse", "outbreak", "rabies", "malaria",
	}},
	{Name: "infrastructure", Keywords: []string{
		"bridge", "road", "highway", "pan borneo", "airport", "seaport", "construction",
		"infrastructure", "water supply", "electricity", "hydro", "railway", "lrt",
		"art transit", "broadband", "telecommunication", "tower",
	}},
	{Name: "tourism", Keywords: []string{
		"tourism", "tourist", "visitor", "travel", "hotel", "resort", "national park",
		"mulu", "niah caves", "bako", "homestay", "holiday", "attraction", "cruise",
	}},
}

var regionTables = []Table{
	{Name: "Kuching", Keywords: []string{"kuching", "padawan", "petra jaya", "santubong", "batu kawa", "bau", "lundu"}},
	{Name: "Miri", Keywords: []string{"miri", "marudi", "niah", "lambir", "baram", "mulu", "bekenu"}},
	{Name: "Sibu", Keywords: []string{"sibu", "kanowit", "selangau", "rajang"}},
	{Name: "Bintulu", Keywords: []string{"bintulu", "tatau", "similajau", "samalaju", "sebauh"}},
	{Name: "Samarahan", Keywords: []string{"samarahan", "asajaya", "simunjan", "sadong"}},
	{Name: "Sri Aman", Keywords: []string{"sri aman", "lubok antu", "batang ai", "engkilili"}},
	{Name: "Betong", Keywords: []string{"betong", "saratok", "debak", "spaoh"}},
	{Name: "Sarikei", Keywords: []string{"sarikei", "meradong", "julau", "pakan"}},
	{Name: "Kapit", Keywords: []string{"kapit", "belaga", "bakun"}},
	{Name: "Mukah", Keywords: []string{"mukah", "dalat", "daro", "matu", "balingian"}},
	{Name: "Limbang", Keywords: []string{"limbang", "lawas", "ba'kelalan", "trusan"}},
	{Name: "Serian", Keywords: []string{"serian", "tebedu", "siburan", "balai ringin"}},
}
