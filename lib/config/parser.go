// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/softdevteam/snare/lib/substitute"
)

// Load reads and parses the config file at path, compiles every match
// rule's regex (anchored ^...$), validates every %-escape used in cmd
// and errorcmd templates, prepends the synthetic default rule, and
// returns the resulting Config. Load is the only interface the rest of
// snared depends on; nothing else inspects the parsed AST.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse parses config source text directly, used by Load and by tests
// that want to avoid touching the filesystem.
func Parse(src string) (*Config, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	cfg := &Config{MaxPending: DefaultMaxPending}
	for p.tok.kind != tokEOF {
		switch {
		case p.isIdent("listen"):
			if err := p.parseListen(cfg); err != nil {
				return nil, err
			}
		case p.isIdent("maxjobs"):
			if err := p.parseMaxJobs(cfg); err != nil {
				return nil, err
			}
		case p.isIdent("user"):
			if err := p.parseUser(cfg); err != nil {
				return nil, err
			}
		case p.isIdent("github"):
			if err := p.parseGithubBlock(cfg); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("unexpected token %q at top level", p.tok.text)
		}
	}

	if cfg.Listen == "" {
		return nil, fmt.Errorf("config: missing required \"listen\" option")
	}
	if cfg.MaxJobs <= 0 {
		return nil, fmt.Errorf("config: \"maxjobs\" must be a positive integer")
	}

	defaultQueue := Sequential
	defaultTimeout := DefaultTimeoutSeconds
	defaultRule := MatchRule{
		Source:    ".*",
		Pattern:   regexp.MustCompile("^.*$"),
		Overlay:   Overlay{Queue: &defaultQueue, Timeout: &defaultTimeout},
		synthetic: true,
	}
	cfg.Rules = append([]MatchRule{defaultRule}, cfg.Rules...)

	return cfg, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("config: line %d: %s", p.tok.line, fmt.Sprintf(format, args...))
}

func (p *parser) isIdent(name string) bool {
	return p.tok.kind == tokIdent && p.tok.text == name
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.tok.kind != kind {
		return token{}, p.errorf("expected %s, got %q", what, p.tok.text)
	}
	tok := p.tok
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return tok, nil
}

func (p *parser) parseAssignString() (string, error) {
	if _, err := p.expect(tokIdent, "identifier"); err != nil {
		return "", err
	}
	if _, err := p.expect(tokEquals, "'='"); err != nil {
		return "", err
	}
	value, err := p.expect(tokString, "string literal")
	if err != nil {
		return "", err
	}
	if _, err := p.expect(tokSemicolon, "';'"); err != nil {
		return "", err
	}
	return value.text, nil
}

func (p *parser) parseAssignInt() (int, error) {
	if _, err := p.expect(tokIdent, "identifier"); err != nil {
		return 0, err
	}
	if _, err := p.expect(tokEquals, "'='"); err != nil {
		return 0, err
	}
	value, err := p.expect(tokInt, "integer literal")
	if err != nil {
		return 0, err
	}
	if _, err := p.expect(tokSemicolon, "';'"); err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value.text)
	if err != nil {
		return 0, fmt.Errorf("config: line %d: invalid integer %q", value.line, value.text)
	}
	return n, nil
}

func (p *parser) parseListen(cfg *Config) error {
	v, err := p.parseAssignString()
	if err != nil {
		return err
	}
	cfg.Listen = v
	return nil
}

func (p *parser) parseUser(cfg *Config) error {
	v, err := p.parseAssignString()
	if err != nil {
		return err
	}
	cfg.User = v
	return nil
}

func (p *parser) parseMaxJobs(cfg *Config) error {
	v, err := p.parseAssignInt()
	if err != nil {
		return err
	}
	cfg.MaxJobs = v
	return nil
}

func (p *parser) parseGithubBlock(cfg *Config) error {
	if err := p.advance(); err != nil { // consume "github"
		return err
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return err
	}
	for p.tok.kind != tokRBrace {
		if p.tok.kind == tokEOF {
			return p.errorf("unterminated github block")
		}
		if !p.isIdent("match") {
			return p.errorf("expected \"match\", got %q", p.tok.text)
		}
		rule, err := p.parseMatchBlock()
		if err != nil {
			return err
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	return p.advance() // consume "}"
}

func (p *parser) parseMatchBlock() (MatchRule, error) {
	if err := p.advance(); err != nil { // consume "match"
		return MatchRule{}, err
	}
	patternTok, err := p.expect(tokString, "regex string literal")
	if err != nil {
		return MatchRule{}, err
	}
	pattern, err := regexp.Compile("^" + patternTok.text + "$")
	if err != nil {
		return MatchRule{}, fmt.Errorf("config: line %d: invalid regex %q: %w", patternTok.line, patternTok.text, err)
	}

	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return MatchRule{}, err
	}

	rule := MatchRule{Source: patternTok.text, Pattern: pattern}
	for p.tok.kind != tokRBrace {
		if p.tok.kind == tokEOF {
			return MatchRule{}, p.errorf("unterminated match block")
		}
		if err := p.parseMatchOption(&rule); err != nil {
			return MatchRule{}, err
		}
	}
	if err := p.advance(); err != nil { // consume "}"
		return MatchRule{}, err
	}
	return rule, nil
}

func (p *parser) parseMatchOption(rule *MatchRule) error {
	switch {
	case p.isIdent("cmd"):
		v, err := p.parseAssignString()
		if err != nil {
			return err
		}
		if err := substitute.ValidateCmd(v); err != nil {
			return fmt.Errorf("config: cmd template: %w", err)
		}
		rule.Overlay.Cmd = &v
	case p.isIdent("errorcmd"):
		v, err := p.parseAssignString()
		if err != nil {
			return err
		}
		if err := substitute.ValidateErrorCmd(v); err != nil {
			return fmt.Errorf("config: errorcmd template: %w", err)
		}
		rule.Overlay.ErrorCmd = &v
	case p.isIdent("secret"):
		v, err := p.parseAssignString()
		if err != nil {
			return err
		}
		rule.Overlay.Secret = &v
	case p.isIdent("queue"):
		line := p.tok.line
		if _, err := p.expect(tokIdent, "identifier"); err != nil {
			return err
		}
		if _, err := p.expect(tokEquals, "'='"); err != nil {
			return err
		}
		valTok, err := p.expect(tokIdent, "queue discipline")
		if err != nil {
			return err
		}
		if _, err := p.expect(tokSemicolon, "';'"); err != nil {
			return err
		}
		kind, err := parseQueueKind(valTok.text)
		if err != nil {
			return fmt.Errorf("config: line %d: %w", line, err)
		}
		rule.Overlay.Queue = &kind
	case p.isIdent("timeout"):
		v, err := p.parseAssignInt()
		if err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("config: \"timeout\" must be a positive integer")
		}
		rule.Overlay.Timeout = &v
	default:
		return p.errorf("unknown match option %q", p.tok.text)
	}
	return nil
}
