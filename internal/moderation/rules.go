package moderation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

type termList struct {
	category Category
	tier     Strictness
	terms    []string
	// applies limits the list to some profiles; nil means every profile.
	applies func(Profile) bool
}

// Global blocklist. Terms are matched on word boundaries after normalization.
var globalLists = []termList{
	{
		category: CategoryMinors,
		tier:     StrictnessLow,
		terms: []string{
			"child porn", "child pornography", "child sexual", "csam", "jailbait", "loli", "lolicon",
			"shotacon", "pedophile", "pedophilia", "paedophile", "sexualized child", "sexualized minor",
		},
	},
	{
		category: CategorySexual,
		tier:     StrictnessLow,
		terms: []string{
			"nude", "nudes", "naked", "nudity", "porn", "porno", "pornography", "pornographic", "sexual",
			"erotic", "erotica", "nsfw", "topless", "nipple", "nipples", "genitals", "hentai", "xxx",
			"pornstar", "pornstars", "porn star", "nakedness", "nudist", "nudism", "sexting", "stripper", "striptease",
			"desnudo", "desnuda", "desnudez", "pornografía", "erótico", "sin ropa",
			"érotique", "pornographique", "sexuel", "nudité", "sans vêtements",
		},
	},
	{
		category: CategorySexual,
		tier:     StrictnessStandard,
		terms: []string{
			"breast", "breasts", "cleavage", "lingerie", "underwear", "bikini", "undressed", "undressing",
			"seductive", "sensual", "provocative", "suggestive", "erotic pose", "sexual pose",
			"adult content", "mature content", "without clothes", "remove clothes", "bare chest",
			"pechos", "senos", "ropa interior", "sugerente", "seins", "poitrine", "sous-vêtements", "suggestif",
		},
	},
	{
		category: CategorySexual,
		tier:     StrictnessStrict,
		terms: []string{
			"swimsuit", "revealing", "skimpy", "shirtless", "exposed skin", "kissing", "intimate",
		},
	},
	{
		category: CategoryViolence,
		tier:     StrictnessLow,
		terms: []string{
			"gore", "beheading", "decapitated", "dismembered", "massacre", "mass shooting", "torture",
			"murder", "terrorist", "terrorism", "bomb", "explosive",
		},
	},
	{
		category: CategoryViolence,
		tier:     StrictnessStandard,
		terms: []string{
			"weapon", "weapons", "gun", "guns", "rifle", "assault", "kill", "killing", "hate", "violence",
			"violent", "shooting", "stabbing",
			"arma", "pistola", "bomba", "explosivo", "asalto", "violencia", "matar", "asesinar", "terrorismo", "odio",
			"arme", "pistolet", "bombe", "explosif", "agression", "tuer", "assassiner", "terrorisme", "haine",
		},
	},
	{
		category: CategoryViolence,
		tier:     StrictnessStrict,
		terms: []string{
			"blood", "bloody", "fight", "fighting", "riot", "war", "corpse", "dead body", "injured",
		},
	},
	{
		category: CategoryOther,
		tier:     StrictnessStandard,
		terms: []string{
			"fake news", "conspiracy", "hoax", "propaganda", "misinformation", "disinformation", "deepfake",
			"election fraud", "voting manipulation", "stolen election",
			"noticias falsas", "desinformación", "fraude electoral", "manipulación electoral", "elección robada",
			"fausses nouvelles", "désinformation", "canular", "propagande", "fraude électoral", "manipulation électorale",
		},
	},
	{
		category: CategoryOther,
		tier:     StrictnessStandard,
		terms: []string{
			"donald trump", "trump", "joe biden", "biden", "vladimir putin", "putin", "xi jinping",
			"emmanuel macron", "macron", "angela merkel", "merkel", "boris johnson", "narendra modi",
			"jair bolsonaro", "bolsonaro", "erdogan", "netanyahu", "zelensky",
			"elon musk", "jeff bezos", "bezos", "bill gates", "mark zuckerberg", "zuckerberg", "tim cook", "sundar pichai",
			"hitler", "stalin", "mussolini", "pinochet",
			"kardashian", "taylor swift", "justin bieber", "lady gaga", "beyonce",
		},
		applies: func(p Profile) bool { return !p.AllowPublicFigures },
	},
	{
		category: CategoryOther,
		tier:     StrictnessLow,
		terms: []string{
			"election", "ballot", "political party", "politician", "candidate", "campaign rally", "protest",
			"demonstration",
		},
		applies: func(p Profile) bool { return !p.AllowPoliticalContent },
	},
	{
		category: CategoryOther,
		tier:     StrictnessStrict,
		terms: []string{
			"protest", "alcohol", "drunk", "drugs", "cocaine", "marijuana", "cigarette", "smoking",
			"gambling", "casino", "horror", "creepy",
		},
	},
}

type pattern struct {
	category Category
	re       *regexp.Regexp
	// exclude is tested against the hit plus a few words on either side; a
	// match there discards the hit.
	exclude *regexp.Regexp
}

const patternContext = 24

const (
	clothingNouns = `(?:cloth(?:es|ing)|dress(?:es)?|shirts?|tops?|bras?|pants|trousers|underwear|outfits?|bikinis?|swimsuits?)`
	personObjects = `(?:people|person|crowd|child(?:ren)?|kids?|protesters?|police|students?|civilians?|villagers?|him|her|them|someone|everyone)`
)

// Bypass patterns run on normalized text and are never lifted by exceptions.
var patterns = []pattern{
	{category: CategoryMinors, re: regexp.MustCompile(`\b(?:child|children|kid|kids|minor|minors|underage|teen|teens|teenage\w*|young (?:girl|boy)s?|little (?:girl|boy)s?|schoolgirl\w*|schoolboy\w*|\d{1,2} ?(?:yo|year old|years old))\b.{0,40}?\b(?:nude|naked|sexy|sexual|erotic|lingerie|undress\w*|topless|seductive|provocative|bikini)\b`)},
	{category: CategoryMinors, re: regexp.MustCompile(`\b(?:nude|naked|sexy|sexual|erotic|undress\w*|topless|seductive)\b.{0,40}?\b(?:child|children|kid|kids|minor|minors|underage|teen|teens|teenage\w*|schoolgirl\w*|schoolboy\w*)\b`)},
	{
		category: CategorySexual,
		re: regexp.MustCompile(`\b(?:(?:remov(?:e|es|ed|ing)|tak(?:e|es|ing) off|took off|pull(?:s|ed|ing)? off)\s+(?:\w+\s+){0,2}?` +
			`|strip(?:s|ped|ping)?\s+(?:off\s+)?(?:her|his|their|the|my|your|all|them|him)\s+(?:\w+\s+){0,1}?)` + clothingNouns + `\b`),
	},
	{category: CategorySexual, re: regexp.MustCompile(`\bshow\w*\s+(?:\w+\s+){0,3}?(?:breast\w*|nipples?|genitals?|private parts?|buttocks|crotch)\b`)},
	{
		category: CategorySexual,
		re:       regexp.MustCompile(`\b(?:no|without|zero)\s+(?:any\s+)?(?:cloth(?:es|ing)|garments?)\b`),
		exclude:  regexp.MustCompile(`\b(?:cloth(?:es|ing)|garments?)\s+(?:donations?|drives?|banks?|stores?|shops?|sections?|collections?|brands?|lines?|industry|racks?|sales?|swaps?|budgets?|waste|needed)\b`),
	},
	{category: CategorySexual, re: regexp.MustCompile(`\b(?:see through|transparent|sheer)\s+(?:\w+\s+){0,2}?(?:shirt|dress|top|clothing|clothes|lingerie|bra)\b`)},
	{category: CategorySexual, re: regexp.MustCompile(`\bundress\w*\b`)},
	{
		category: CategoryViolence,
		re: regexp.MustCompile(`\b(?:shoot(?:s|ing)?|shot|stab(?:s|bed|bing)?|behead(?:s|ed|ing)?|kill(?:s|ed|ing)?|murder(?:s|ed|ing)?|execut(?:e|es|ed|ing)|tortur(?:e|es|ed|ing))\s+` +
			`(?:(?:the|a|an|some|those|these|all|two|three|several|many|innocent|unarmed|young|peaceful)\s+){0,2}` + personObjects + `\b`),
		exclude: regexp.MustCompile(`\b(?:photo|video|film|fashion|movie|product|portrait|group|team)\s+shoot(?:s|ing)?\b`),
	},
	{category: CategoryViolence, re: regexp.MustCompile(`\b(?:make|build|assemble)\s+(?:\w+\s+){0,2}?(?:bombs?|explosives?|pipe bombs?)\b`)},
	{category: CategoryViolence, re: regexp.MustCompile(`\b(?:blood|gore)\s+(?:\w+\s+){0,2}?(?:everywhere|splatter\w*|pool\w*|soaked)\b`)},
}

// combination blocks when one term from every group is present.
type combination struct {
	category Category
	groups   [][]string
}

var combinations = []combination{
	{CategoryOther, [][]string{{"election", "elections", "voting", "vote", "ballot", "ballots"}, {"fraud", "rigged", "stolen"}}},
	{CategoryOther, [][]string{{"fake", "fabricated", "doctored", "forged"}, {"news", "headline", "ballot", "evidence", "document"}}},
	{CategoryOther, [][]string{{"deepfake", "face swap", "faceswap"}, {"politician", "president", "candidate", "minister", "celebrity"}}},
	{CategoryViolence, [][]string{{"violence", "attack", "attacking", "assault", "shoot", "kill"}, {"politician", "candidate", "minister", "president", "protesters"}}},
	{CategoryViolence, [][]string{{"weapon", "weapons", "gun", "guns", "rifle"}, {"protest", "crowd", "rally", "school"}}},
}

// ruleset is the compiled term table for one profile.
type ruleset struct {
	terms      []compiledTerm
	exceptions map[string]struct{}
}

type compiledTerm struct {
	term     string
	category Category
}

func compileRuleset(p Profile) ruleset {
	exceptions := make(map[string]struct{}, len(p.AllowedExceptions))
	for _, ex := range p.AllowedExceptions {
		if n := normalize(ex); n != "" {
			exceptions[n] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var terms []compiledTerm
	add := func(raw string, category Category) {
		term := normalize(raw)
		if term == "" {
			return
		}
		if _, ok := exceptions[term]; ok {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, compiledTerm{term: term, category: category})
	}

	for _, list := range globalLists {
		if !p.Strictness.includes(list.tier) {
			continue
		}
		if list.applies != nil && !list.applies(p) {
			continue
		}
		for _, t := range list.terms {
			add(t, list.category)
		}
	}
	for _, t := range p.AdditionalBlockedTerms {
		add(t, CategoryOther)
	}

	sort.SliceStable(terms, func(i, j int) bool {
		return terms[i].category.priority() < terms[j].category.priority()
	})
	return ruleset{terms: terms, exceptions: exceptions}
}

// match is one rule hit.
type match struct {
	text     string
	category Category
}

func (r ruleset) matchTerms(padded string) []match {
	var hits []match
	for _, t := range r.terms {
		if strings.Contains(padded, " "+t.term+" ") {
			hits = append(hits, match{text: t.term, category: t.category})
		}
	}
	return hits
}

func matchPatterns(normalized string) []match {
	var hits []match
	for _, p := range patterns {
		if found, ok := p.find(normalized); ok {
			hits = append(hits, match{text: found, category: p.category})
		}
	}
	return hits
}

// find returns the first hit of p that its exclusion does not discard.
func (p pattern) find(normalized string) (string, bool) {
	for _, loc := range p.re.FindAllStringIndex(normalized, -1) {
		if p.exclude != nil {
			from, to := max(0, loc[0]-patternContext), min(len(normalized), loc[1]+patternContext)
			if p.exclude.MatchString(normalized[from:to]) {
				continue
			}
		}
		return strings.TrimSpace(normalized[loc[0]:loc[1]]), true
	}
	return "", false
}

func matchCombinations(padded string, exceptions map[string]struct{}) []match {
	var hits []match
	for _, combo := range combinations {
		found := make([]string, 0, len(combo.groups))
		for _, group := range combo.groups {
			for _, term := range group {
				if _, ok := exceptions[term]; ok {
					continue
				}
				if strings.Contains(padded, " "+term+" ") {
					found = append(found, term)
					break
				}
			}
		}
		if len(found) == len(combo.groups) {
			hits = append(hits, match{text: strings.Join(found, "+"), category: combo.category})
		}
	}
	return hits
}

// normalize lowercases and reduces text to space separated words.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// summarize picks the highest-priority category and the ordered, unique
// flagged texts.
func summarize(hits []match) (Category, []string) {
	category := CategoryNone
	seen := make(map[string]struct{}, len(hits))
	flagged := make([]string, 0, len(hits))
	for _, h := range hits {
		if category == CategoryNone || h.category.priority() < category.priority() {
			category = h.category
		}
		if _, ok := seen[h.text]; ok {
			continue
		}
		seen[h.text] = struct{}{}
		flagged = append(flagged, h.text)
	}
	return category, flagged
}
