package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

const systemInstruction = `Você é o FinAI, o CFO Digital definitivo. Sua missão é transformar o caos financeiro em estrutura previsível.

REGRAS DE CLASSIFICAÇÃO OBRIGATÓRIA (campo 'type'):
1. "point_transaction" (evento único): compras casuais, entradas extras.
2. "fixed_income" (renda fixa recorrente): salário, pró-labore, aluguéis recebidos.
3. "fixed_expense" (despesa fixa recorrente): Netflix, academia, aluguel, condomínio.
4. "installment" (compra parcelada): qualquer compra dividida em meses.
5. "clarification": quando faltar informação para registrar com segurança.

REGRA DE OURO DE DATAS:
- Se o usuário informar um dia específico (ex: "todo dia 6"), retorne esse dia em 'transaction.day'.
- O registro é sempre feito no mês corrente, mesmo que o dia já tenha passado.
- Nunca use a data de hoje se uma data específica foi mencionada.

LÓGICA DE PARCELAMENTO:
- Identifique se o valor informado é o TOTAL ou a PARCELA.
- 'amount' é sempre o valor da parcela mensal e 'totalAmount' o valor total da compra.
- Identifique 'totalInstallments'.

PREVENÇÃO DE DUPLICIDADE:
- O contexto contém os nomes dos lançamentos fixos atuais.
- Se o nome for similar, defina 'isPotentialDuplicate' como true.

FEEDBACK (campo 'response'):
- Confirme a classificação e a recorrência em uma ou duas frases.
- Nunca use negrito. Use emojis para empatia.`

// generator is the slice of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier classifies messages with a Gemini model using a strict
// JSON response schema.
type GeminiClassifier struct {
	models generator
	model  string
}

// NewGeminiClassifier creates a Gemini API client for apiKey.
func NewGeminiClassifier(ctx context.Context, apiKey, model string) (*GeminiClassifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiClassifier(client.Models, model), nil
}

func newGeminiClassifier(models generator, model string) *GeminiClassifier {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClassifier{models: models, model: model}
}

func (g *GeminiClassifier) Classify(ctx context.Context, req Request) (Result, error) {
	parts := []*genai.Part{
		{Text: fmt.Sprintf("[CONTEXTO DO CFO]\n%s\n\n[MENSAGEM DO USUÁRIO]\n%s", req.Context, req.Text)},
	}
	if req.Image != nil && len(req.Image.Data) > 0 {
		mime := req.Image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: req.Image.Data}})
	}
	contents := []*genai.Content{{Role: string(genai.RoleUser), Parts: parts}}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
		Temperature:       genai.Ptr[float32](0.1),
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return Result{}, errors.New("empty response from model")
	}
	var res Result
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &res); err != nil {
		return Result{}, fmt.Errorf("unmarshal classification: %w", err)
	}
	return res, nil
}

func responseSchema() *genai.Schema {
	types := make([]string, len(Types))
	for i, t := range Types {
		types[i] = string(t)
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"type": {
				Type:        genai.TypeString,
				Enum:        types,
				Description: "Classificação técnica obrigatória.",
			},
			"intentLabel": {
				Type:        genai.TypeString,
				Description: "Rótulo amigável: 'Evento único', 'Renda fixa', 'Gasto fixo' ou 'Parcelamento'.",
			},
			"transaction": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"amount":            {Type: genai.TypeNumber, Description: "Valor da parcela mensal ou valor único."},
					"totalAmount":       {Type: genai.TypeNumber, Description: "Valor total (para parcelas)."},
					"merchant":          {Type: genai.TypeString, Description: "Nome do estabelecimento ou fonte."},
					"category":          {Type: genai.TypeString},
					"direction":         {Type: genai.TypeString, Enum: []string{"inflow", "outflow"}},
					"day":               {Type: genai.TypeInteger, Description: "Dia do mês do vencimento ou recebimento (1-31)."},
					"totalInstallments": {Type: genai.TypeInteger},
				},
				Required: []string{"amount", "merchant", "direction"},
			},
			"isPotentialDuplicate": {
				Type:        genai.TypeBoolean,
				Description: "Sinaliza se já existe algo similar no contexto.",
			},
			"response": {
				Type:        genai.TypeString,
				Description: "Feedback profissional do CFO.",
			},
		},
		Required: []string{"type", "intentLabel", "response"},
	}
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
