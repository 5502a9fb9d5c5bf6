// Package parser reads markdown note files. A note has an optional "# "
// title, an optional "Tags:" line and free text; flashcards can be written
// inline as "Q:" / "A:" blocks, separated by a new "Q:" or a "---" line.
package parser

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	titlePrefix    = "# "
	tagsPrefix     = "tags:"
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	separator      = "---"
)

// Card is a flashcard written inside a note.
type Card struct {
	Front string
	Back  string
}

// Document is a parsed note file.
type Document struct {
	Title string
	Tags  []string
	Body  string
	Cards []Card
}

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
)

// ParseFile reads a note from path. The file name, without extension, is
// the title when the file has no heading.
func ParseFile(path string) (Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer file.Close()

	doc, err := Parse(file)
	if err != nil {
		return Document{}, err
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Parse reads a note from r.
func Parse(r io.Reader) (Document, error) {
	scanner := bufio.NewScanner(r)
	var (
		doc          Document
		body         []string
		currentCard  Card
		currentBlock []string
		currentState = seeking
		seenText     bool
	)

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(currentBlock, "\n"))
		switch currentState {
		case readingQuestion:
			currentCard.Front = content
		case readingAnswer:
			currentCard.Back = content
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		if currentCard.Front != "" && currentCard.Back != "" {
			doc.Cards = append(doc.Cards, currentCard)
		}
		currentCard = Card{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if doc.Title == "" && !seenText && currentState == seeking && strings.HasPrefix(line, titlePrefix) {
			doc.Title = strings.TrimSpace(line[len(titlePrefix):])
			continue
		}
		if doc.Tags == nil && currentState == seeking && strings.HasPrefix(strings.ToLower(line), tagsPrefix) {
			doc.Tags = splitTags(line[len(tagsPrefix):])
			continue
		}
		body = append(body, line)
		if strings.TrimSpace(line) != "" {
			seenText = true
		}

		switch {
		case line == separator:
			finishCard()
		case strings.HasPrefix(line, questionPrefix):
			// A new question always starts a new card.
			if currentState != seeking {
				finishCard()
			}
			currentState = readingQuestion
			currentBlock = append(currentBlock, trimPrefix(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix) && currentState == readingQuestion:
			flushBlock()
			currentState = readingAnswer
			currentBlock = append(currentBlock, trimPrefix(line, answerPrefix))
		case currentState != seeking:
			currentBlock = append(currentBlock, line)
		}
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return Document{}, err
	}
	doc.Body = strings.TrimSpace(strings.Join(body, "\n"))
	return doc, nil
}

func trimPrefix(line, prefix string) string {
	content := line[len(prefix):]
	if strings.HasPrefix(content, " ") {
		content = content[1:]
	}
	return content
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
